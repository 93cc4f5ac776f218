// Command trailctl talks to a running renderer's control server.
//
//	trailctl [-addr host:port] list
//	trailctl get [name]
//	trailctl set <name> <value>
//	trailctl profile <name>
//	trailctl watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"trailfield/server"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	nameColor  = color.New(color.FgHiBlue, color.Bold)
	valueColor = color.New(color.FgHiGreen)
	errorColor = color.New(color.FgHiRed, color.Bold)
	dimColor   = color.New(color.FgHiBlack)
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Control server address")
	timeout := flag.Duration("timeout", 10*time.Second, "How long to keep retrying the connection")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: trailctl [flags] list | get [name] | set <name> <value> | profile <name> | watch")
		flag.PrintDefaults()
	}
	flag.Parse()

	watch := flag.NArg() == 1 && flag.Arg(0) == "watch"
	var req server.Request
	if !watch {
		var err error
		if req, err = parseCommand(flag.Args()); err != nil {
			errorColor.Fprintln(os.Stderr, err)
			flag.Usage()
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	conn, err := dial(ctx, "ws://"+*addr+"/ws")
	cancel()
	if err != nil {
		errorColor.Fprintf(os.Stderr, "connect %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	if watch {
		err = watchChanges(conn, os.Stdout)
	} else {
		err = execute(conn, req, os.Stdout)
	}
	if err != nil {
		errorColor.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseCommand turns command-line words into a control request.
func parseCommand(args []string) (server.Request, error) {
	if len(args) == 0 {
		return server.Request{}, errors.New("missing command")
	}
	req := server.Request{ID: strconv.FormatInt(time.Now().UnixNano(), 36), Op: args[0]}
	switch args[0] {
	case server.OpList:
		if len(args) != 1 {
			return req, errors.New("list takes no arguments")
		}
	case server.OpGet:
		if len(args) > 2 {
			return req, errors.New("get takes at most one name")
		}
		if len(args) == 2 {
			req.Name = args[1]
		}
	case server.OpSet:
		if len(args) != 3 {
			return req, errors.New("set needs a name and a value")
		}
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return req, fmt.Errorf("value %q: %w", args[2], err)
		}
		req.Name = args[1]
		req.Value = &v
	case server.OpProfile:
		if len(args) != 2 {
			return req, errors.New("profile needs a name")
		}
		req.Name = args[1]
	default:
		return req, fmt.Errorf("unknown command %q", args[0])
	}
	return req, nil
}

// dial connects with exponential backoff until ctx expires, so trailctl
// can be started alongside the renderer.
func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	var conn *websocket.Conn
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, bo)
	return conn, err
}

func execute(conn *websocket.Conn, req server.Request, out io.Writer) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	for {
		resp, err := read(conn)
		if err != nil {
			return err
		}
		// Skip change notices from other sessions.
		if resp.ID != req.ID {
			continue
		}
		if !resp.OK {
			return errors.New(resp.Error)
		}
		printResponse(out, resp)
		return nil
	}
}

func watchChanges(conn *websocket.Conn, out io.Writer) error {
	for {
		resp, err := read(conn)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if resp.Op == server.OpChanged {
			dimColor.Fprintf(out, "%s ", resp.Session)
			printResponse(out, resp)
		}
	}
}

func read(conn *websocket.Conn) (server.Response, error) {
	var resp server.Response
	_, data, err := conn.ReadMessage()
	if err != nil {
		return resp, err
	}
	err = json.Unmarshal(data, &resp)
	return resp, err
}

func printResponse(out io.Writer, resp server.Response) {
	switch {
	case len(resp.Values) > 0:
		if resp.Profile != "" {
			nameColor.Fprintf(out, "%-22s", "profile")
			valueColor.Fprintln(out, resp.Profile)
		}
		names := make([]string, 0, len(resp.Values))
		for name := range resp.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			nameColor.Fprintf(out, "%-22s", name)
			valueColor.Fprintf(out, "%g\n", resp.Values[name])
		}
	case len(resp.Params) > 0 || len(resp.Profiles) > 0:
		nameColor.Fprintln(out, "parameters")
		for _, p := range resp.Params {
			fmt.Fprintf(out, "  %s\n", p)
		}
		nameColor.Fprintln(out, "profiles")
		for _, p := range resp.Profiles {
			fmt.Fprintf(out, "  %s\n", p)
		}
	case resp.Value != nil:
		nameColor.Fprintf(out, "%s ", resp.Name)
		valueColor.Fprintf(out, "%g\n", *resp.Value)
	case resp.Profile != "":
		nameColor.Fprint(out, "profile ")
		valueColor.Fprintln(out, resp.Profile)
	default:
		fmt.Fprintln(out, "ok")
	}
}
