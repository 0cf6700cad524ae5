package flagx

import (
	"os"
	"reflect"
	"testing"
)

func TestFilterArgs(t *testing.T) {
	allowed := []string{"-c", "-config"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "separate value",
			args: []string{"-c", "conf.json"},
			want: []string{"-c", "conf.json"},
		},
		{
			name: "equals form",
			args: []string{"-config=conf.json"},
			want: []string{"-config=conf.json"},
		},
		{
			name: "foreign flags dropped",
			args: []string{"-v", "-c", "conf.json", "-port=8080"},
			want: []string{"-c", "conf.json"},
		},
		{
			name: "allowed flag followed by another flag keeps no value",
			args: []string{"-c", "-v"},
			want: []string{"-c"},
		},
		{
			name: "allowed flag at the end",
			args: []string{"-x", "-config"},
			want: []string{"-config"},
		},
		{
			name: "empty args",
			args: nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, allowed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterArgs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "long flag", args: []string{"cmd", "-config", "server.json"}, want: "server.json"},
		{name: "short flag", args: []string{"cmd", "-c", "s.json"}, want: "s.json"},
		{name: "equals form", args: []string{"cmd", "-config=x.json"}, want: "x.json"},
		{name: "absent", args: []string{"cmd", "-port", "8080"}, want: ""},
	}

	orig := os.Args
	defer func() { os.Args = orig }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			if got := JsonConfigFlags(); got != tt.want {
				t.Errorf("JsonConfigFlags() = %q, want %q", got, tt.want)
			}
		})
	}
}
