package main

import (
	"reflect"
	"testing"
)

func TestParseStrategies(t *testing.T) {
	nations := []string{"aurel", "brask", "corvan"}
	tests := []struct {
		name string
		cfg  string
		want map[string]string
	}{
		{
			name: "single strategy",
			cfg:  "random",
			want: map[string]string{"aurel": "random", "brask": "random", "corvan": "random"},
		},
		{
			name: "cycled list",
			cfg:  "heuristic,passive",
			want: map[string]string{"aurel": "heuristic", "brask": "passive", "corvan": "heuristic"},
		},
		{
			name: "pairs with default",
			cfg:  "brask=random,*=passive",
			want: map[string]string{"aurel": "passive", "brask": "random", "corvan": "passive"},
		},
		{
			name: "unknown nation dropped",
			cfg:  "zed=random",
			want: map[string]string{"aurel": "heuristic", "brask": "heuristic", "corvan": "heuristic"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseStrategies(tt.cfg, nations); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseStrategies(%q) = %v, want %v", tt.cfg, got, tt.want)
			}
		})
	}
}
