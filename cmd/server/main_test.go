package main

import "testing"

func TestConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"-addr", ":9090"}, ""},
		{[]string{"-config", "apron.yaml"}, "apron.yaml"},
		{[]string{"--config", "apron.yaml", "-debug"}, "apron.yaml"},
		{[]string{"-debug", "--config=/etc/apron.yaml"}, "/etc/apron.yaml"},
		{[]string{"-config"}, ""},
		{[]string{"config", "x"}, ""},
	}
	for _, tt := range tests {
		if got := configPathFromArgs(tt.args); got != tt.want {
			t.Errorf("configPathFromArgs(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
