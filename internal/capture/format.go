package capture

import "github.com/satriahrh/voicecall/domain/repositories"

// SelectFormat returns the first preference the encoder supports.
// The empty mime type stands for the platform default and always matches.
func SelectFormat(preferences []string, support repositories.EncoderSupport) string {
	for _, mimeType := range preferences {
		if mimeType == "" {
			return ""
		}
		if support != nil && support.IsTypeSupported(mimeType) {
			return mimeType
		}
	}
	return ""
}
