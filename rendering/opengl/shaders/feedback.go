package shaders

// MaxStamps must match the uStamps array length below.
const MaxStamps = 32

// FullscreenVertex draws one triangle covering the viewport without any
// vertex buffer; bind an empty VAO and draw 3 vertices.
const FullscreenVertex = `
#version 430 core

const vec2 positions[3] = vec2[](
    vec2(-1.0, -1.0),
    vec2( 3.0, -1.0),
    vec2(-1.0,  3.0)
);

out vec2 vUv;

void main() {
    vec2 pos = positions[gl_VertexID];
    vUv = pos * 0.5 + 0.5;
    gl_Position = vec4(pos, 0.0, 1.0);
}
`

// FeedbackFragment decays the previous trail field and stamps every active
// deposit into it. Each stamp is (x, y, intensity, heading).
const FeedbackFragment = `
#version 430 core

in vec2 vUv;
out vec4 outColor;

uniform sampler2D uPrevious;
uniform float uAccumulation;
uniform float uTurbulenceScale;
uniform float uTurbulenceStrength;
uniform float uEdgeSharpness;
uniform float uSwirlStrength;
uniform float uRadius;
uniform float uTime;
uniform int uStampCount;
uniform vec4 uStamps[32];

float hash2(vec2 p) {
    return fract(sin(dot(p, vec2(127.1, 311.7))) * 43758.5453);
}

float valueNoise(vec2 p) {
    vec2 i = floor(p);
    vec2 f = p - i;
    float a = hash2(i);
    float b = hash2(i + vec2(1.0, 0.0));
    float c = hash2(i + vec2(0.0, 1.0));
    float d = hash2(i + vec2(1.0, 1.0));
    vec2 u = f * f * (3.0 - 2.0 * f);
    float n = a + (b - a) * u.x + (c - a) * u.y + (a - b - c + d) * u.x * u.y;
    return n * 2.0 - 1.0;
}

float falloff(vec2 uv, vec2 center) {
    vec2 d = uv - center;
    float len = length(d);
    float shrink = 1.0 - uTurbulenceStrength;
    if (shrink > 0.0 && len * shrink >= uRadius) {
        return 0.0;
    }

    float theta = uSwirlStrength * 20.0 * (1.0 - clamp(len / uRadius, 0.0, 1.0));
    float s = sin(theta);
    float c = cos(theta);
    vec2 r = vec2(d.x * c - d.y * s, d.x * s + d.y * c);

    float n = valueNoise((center + r) * uTurbulenceScale + uTime);
    float dist = len * (1.0 + uTurbulenceStrength * n);

    float hard = clamp(uEdgeSharpness / 0.3, 0.0, 1.0) * 0.9;
    return 1.0 - smoothstep(uRadius * hard, uRadius, dist);
}

void main() {
    vec4 color = texture(uPrevious, vUv) * uAccumulation;

    for (int i = 0; i < uStampCount; i++) {
        vec4 stamp = uStamps[i];
        float f = falloff(vUv, stamp.xy) * stamp.z;
        if (f <= 0.0) {
            continue;
        }
        color += f * vec4(1.0, 0.5 + 0.5 * cos(stamp.w), 0.5 + 0.5 * sin(stamp.w), 1.0);
    }

    outColor = clamp(color, 0.0, 1.0);
}
`
