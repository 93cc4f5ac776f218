package shaders

// SurfaceVertex displaces a unit plane along +z by the trail value. The
// plane spans [-1,1] in x and y; aUv runs [0,1] with v up.
const SurfaceVertex = `
#version 430 core

layout (location = 0) in vec2 aPosition;
layout (location = 1) in vec2 aUv;

uniform mat4 uModel;
uniform mat4 uViewProjection;
uniform sampler2D uTrail;
uniform sampler2D uNormalMap;
uniform float uDisplacement;

out vec2 vUv;
out vec3 vWorld;

void main() {
    float t = texture(uTrail, aUv).r;
    float h = texture(uNormalMap, aUv).a;
    vec3 pos = vec3(aPosition, uDisplacement * t * (0.5 + 0.5 * h));

    vec4 world = uModel * vec4(pos, 1.0);
    vUv = aUv;
    vWorld = world.xyz;
    gl_Position = uViewProjection * world;
}
`

// SurfaceFragment lights the displaced surface with wrap diffuse and
// Blinn-Phong specular.
const SurfaceFragment = `
#version 430 core

in vec2 vUv;
in vec3 vWorld;
out vec4 outColor;

uniform sampler2D uTrail;
uniform sampler2D uNormalMap;
uniform vec3 uLightPosition;
uniform vec3 uCameraPosition;
uniform float uAmbient;
uniform float uDiffuse;
uniform float uSpecular;
uniform float uSpecularPower;
uniform float uWrap;
uniform vec3 uTint;

void main() {
    float t = texture(uTrail, vUv).r;
    vec3 mapNormal = texture(uNormalMap, vUv).rgb * 2.0 - 1.0;

    float bump = 0.35 + t;
    vec3 n = vec3(mapNormal.xy * bump, mapNormal.z);
    n = length(n) > 0.0 ? normalize(n) : vec3(0.0, 0.0, 1.0);

    vec3 l = normalize(uLightPosition - vWorld);
    vec3 v = normalize(uCameraPosition - vWorld);
    vec3 h = normalize(l + v);

    float wrapDiffuse = max((dot(n, l) + uWrap) / (1.0 + uWrap), 0.0);
    float spec = uSpecular * pow(max(dot(n, h), 0.0), uSpecularPower);

    vec3 color = uTint * (uAmbient + uDiffuse * wrapDiffuse) + vec3(spec);
    outColor = vec4(clamp(color, 0.0, 1.0), 1.0);
}
`

// OverlayVertex and OverlayFragment draw flat-coloured screen-space quads.
const OverlayVertex = `
#version 430 core

layout (location = 0) in vec2 position;
layout (location = 1) in vec4 color;

out vec4 fragColor;

uniform mat4 projection;

void main() {
    gl_Position = projection * vec4(position, 0.0, 1.0);
    fragColor = color;
}
`

const OverlayFragment = `
#version 430 core

in vec4 fragColor;
out vec4 outColor;

void main() {
    outColor = fragColor;
}
`
