package diagnoses

import (
	"errors"
	"testing"
)

func TestImageSourceRoundTrip(t *testing.T) {
	original := ImagePayload{MimeType: "image/jpeg", Base64Data: "aGVsbG8="}
	src := original.DataURL()
	if src != "data:image/jpeg;base64,aGVsbG8=" {
		t.Fatalf("unexpected data URL %q", src)
	}

	parsed, err := ParseImageSource(src)
	if err != nil {
		t.Fatalf("ParseImageSource: %v", err)
	}
	if parsed != original {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, original)
	}
}

func TestParseImageSourceRejections(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "no prefix", src: "image/png;base64,AAAA"},
		{name: "no separator", src: "data:image/png;base64"},
		{name: "no base64 marker", src: "data:image/png,AAAA"},
		{name: "empty mime", src: "data:;base64,AAAA"},
		{name: "empty data", src: "data:image/png;base64,"},
		{name: "invalid base64", src: "data:image/png;base64,@@@@"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseImageSource(tt.src); !errors.Is(err, ErrBadImagePayload) {
				t.Fatalf("expected ErrBadImagePayload, got %v", err)
			}
		})
	}
}
