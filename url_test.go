package icapclient

import (
	"errors"
	"testing"
)

func TestParseServiceURL(t *testing.T) {
	type testSample struct {
		urlStr string
		want   ServiceInformation
		err    error
	}

	sampleTable := []testSample{
		{
			urlStr: "icap://localhost:1344/respmod",
			want:   ServiceInformation{Host: "localhost", Port: 1344, ServiceName: "respmod"},
		},
		{
			urlStr: "icap://localhost/respmod",
			want:   ServiceInformation{Host: "localhost", Port: 1344, ServiceName: "respmod"},
		},
		{
			urlStr: "icaps://scanner.internal:11344/reqmod",
			want:   ServiceInformation{Host: "scanner.internal", Port: 11344, ServiceName: "reqmod", Secure: true},
		},
		{
			urlStr: "http://localhost:1344/respmod",
			err:    ErrInvalidScheme,
		},
		{
			urlStr: "icap://",
			err:    ErrInvalidHost,
		},
	}

	for _, tc := range sampleTable {
		t.Run(tc.urlStr, func(t *testing.T) {
			got, err := ParseServiceURL(tc.urlStr)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("ParseServiceURL(%q) error = %v, want %v", tc.urlStr, err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServiceURL(%q) unexpected error: %v", tc.urlStr, err)
			}
			if got != tc.want {
				t.Errorf("ParseServiceURL(%q) = %+v, want %+v", tc.urlStr, got, tc.want)
			}
		})
	}
}
