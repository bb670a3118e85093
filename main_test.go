package main

import (
	"net"
	"testing"
	"time"
)

func TestParseTCPKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{in: "on", want: net.KeepAliveConfig{Enable: true}},
		{in: " OFF ", want: net.KeepAliveConfig{}},
		{in: "45:45:3", want: net.KeepAliveConfig{Enable: true, Idle: 45 * time.Second, Interval: 45 * time.Second, Count: 3}},
		{in: "", wantErr: true},
		{in: "45:45", wantErr: true},
		{in: "0:45:3", wantErr: true},
		{in: "45:x:3", wantErr: true},
		{in: "45:45:-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTCPKeepAlive(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultUpstream(t *testing.T) {
	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "")
	if got := defaultUpstream(); got != "direct://" {
		t.Fatalf("got %q", got)
	}

	t.Setenv("all_proxy", "socks5://127.0.0.1:1081")
	if got := defaultUpstream(); got != "socks5://127.0.0.1:1081" {
		t.Fatalf("got %q", got)
	}

	t.Setenv("ALL_PROXY", "socks5://127.0.0.1:1082")
	if got := defaultUpstream(); got != "socks5://127.0.0.1:1082" {
		t.Fatalf("got %q", got)
	}
}

func TestSecondsOrDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "10", want: 10 * time.Second},
		{in: " 0 ", want: 0},
		{in: "1500ms", want: 1500 * time.Millisecond},
		{in: "5m", want: 5 * time.Minute},
		{in: "-3", wantErr: true},
		{in: "-1s", wantErr: true},
		{in: "ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d := secondsOrDuration(time.Minute)
			err := d.Set(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && time.Duration(d) != tt.want {
				t.Fatalf("got %s, want %s", time.Duration(d), tt.want)
			}
		})
	}
}
