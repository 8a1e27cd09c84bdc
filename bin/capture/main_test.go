package main

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"snapshot-render/internal/capture"
)

func TestParseView(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		i    int
		want capture.View
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"home=https://example.com/",
			0,
			capture.View{Name: "home", URL: "https://example.com/"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"https://example.com/search?q=go",
			2,
			capture.View{Name: "3", URL: "https://example.com/search?q=go"},
		},
	}

	for _, tt := range tests {
		name := tt.name
		arg := tt.arg
		i := tt.i
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(want, parseView(arg, i)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}
