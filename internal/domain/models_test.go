package domain

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseFingerprint(t *testing.T) {
	valid := "0123456789ABCDEF0123456789abcdef01234567"
	tests := []struct {
		name    string
		in      string
		want    Fingerprint
		wantErr bool
	}{
		{"LowercasesHex", valid, Fingerprint(strings.ToLower(valid)), false},
		{"TrimsSpace", "  " + strings.ToLower(valid) + "\n", Fingerprint(strings.ToLower(valid)), false},
		{"TooShort", "abc", "", true},
		{"TooLong", valid + "00", "", true},
		{"NotHex", strings.Repeat("z", 40), "", true},
		{"Empty", "", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFingerprint(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidFingerprint) {
					t.Fatalf("err = %v, want ErrInvalidFingerprint", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFingerprintShort(t *testing.T) {
	fp := Fingerprint("0123456789abcdef0123456789abcdef01234567")
	if fp.Short() != "01234567" {
		t.Fatalf("Short() = %q", fp.Short())
	}
	if Fingerprint("abc").Short() != "abc" {
		t.Fatalf("short fingerprint must be returned unchanged")
	}
}

func TestSourceValidate(t *testing.T) {
	if err := MetainfoSource([]byte("d4:infod4:name1:aee")).Validate(); err != nil {
		t.Fatalf("metainfo source: %v", err)
	}
	if err := MagnetSource("magnet:?xt=urn:btih:abc").Validate(); err != nil {
		t.Fatalf("magnet source: %v", err)
	}
	if err := MetainfoSource(nil).Validate(); err == nil {
		t.Fatalf("empty metainfo must fail")
	}
	if err := MagnetSource("  ").Validate(); err == nil {
		t.Fatalf("blank magnet must fail")
	}
	if err := (Source{}).Validate(); err == nil {
		t.Fatalf("zero source must fail")
	}
}

func TestEpisodeHintValid(t *testing.T) {
	if (EpisodeHint{}).Valid() {
		t.Fatalf("zero hint must be invalid")
	}
	if (EpisodeHint{Season: 2}).Valid() {
		t.Fatalf("season-only hint must be invalid")
	}
	if !(EpisodeHint{Season: 2, Episode: 5}).Valid() {
		t.Fatalf("season+episode hint must be valid")
	}
}

func TestCachedTorrentJSONTags(t *testing.T) {
	expectJSONTag(t, CachedTorrent{}, "Fingerprint", "fingerprint")
	expectJSONTag(t, CachedTorrent{}, "DownloadedBytes", "downloadedBytes")
	expectJSONTag(t, CachedTorrent{}, "LastAccess", "lastAccess,omitempty")
}

func TestFileRefJSONTags(t *testing.T) {
	expectJSONTag(t, FileRef{}, "Index", "index")
	expectJSONTag(t, FileRef{}, "Path", "path")
	expectJSONTag(t, FileRef{}, "Length", "length")
}

func expectJSONTag(t *testing.T, v interface{}, fieldName, want string) {
	t.Helper()
	typ := reflect.TypeOf(v)
	field, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("missing field %s", fieldName)
	}
	if got := field.Tag.Get("json"); got != want {
		t.Fatalf("%s json tag = %q, want %q", fieldName, got, want)
	}
}
