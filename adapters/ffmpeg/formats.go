package ffmpeg

import (
	"bufio"
	"strings"
)

// container describes how a recording mime type maps onto ffmpeg
type container struct {
	muxer string
	// codecs are tried in order; the first available encoder is used
	codecs []string
	extra  []string
}

// defaultContainer is used for the empty ("platform default") mime type
var defaultContainer = container{muxer: "wav", codecs: []string{"pcm_s16le"}}

// containerFor resolves a recording mime type such as "audio/webm;codecs=opus"
func containerFor(mimeType string) (container, bool) {
	if strings.TrimSpace(mimeType) == "" {
		return defaultContainer, true
	}

	base, params, _ := strings.Cut(mimeType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	codec := ""
	if params != "" {
		for _, p := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if ok && strings.EqualFold(k, "codecs") {
				codec = strings.ToLower(strings.Trim(v, `"' `))
			}
		}
	}

	switch base {
	case "audio/webm":
		switch codec {
		case "":
			return container{muxer: "webm", codecs: []string{"libopus", "libvorbis"}}, true
		case "opus":
			return container{muxer: "webm", codecs: []string{"libopus"}}, true
		case "vorbis":
			return container{muxer: "webm", codecs: []string{"libvorbis"}}, true
		}
	case "audio/ogg":
		switch codec {
		case "", "opus":
			return container{muxer: "ogg", codecs: []string{"libopus"}}, true
		case "vorbis":
			return container{muxer: "ogg", codecs: []string{"libvorbis"}}, true
		}
	case "audio/mp4":
		if codec == "" || strings.HasPrefix(codec, "mp4a") || codec == "aac" {
			return container{
				muxer:  "mp4",
				codecs: []string{"aac"},
				// mp4 on a pipe needs a fragmented layout
				extra: []string{"-movflags", "frag_keyframe+empty_moov"},
			}, true
		}
	case "audio/wav", "audio/wave", "audio/x-wav":
		return defaultContainer, true
	}
	return container{}, false
}

// parseMuxers reads the output of `ffmpeg -muxers`
func parseMuxers(output string) map[string]bool {
	return parseCapabilityList(output, func(flags string) bool {
		return strings.Contains(flags, "E")
	})
}

// parseEncoders reads the output of `ffmpeg -encoders`, keeping audio encoders
func parseEncoders(output string) map[string]bool {
	return parseCapabilityList(output, func(flags string) bool {
		return strings.HasPrefix(flags, "A")
	})
}

// parseCapabilityList parses the "flags name description" rows that follow the
// "--" separator in ffmpeg's listing commands.
func parseCapabilityList(output string, keep func(flags string) bool) map[string]bool {
	names := map[string]bool{}
	started := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			if strings.HasPrefix(line, "--") {
				started = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !keep(fields[0]) {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}
