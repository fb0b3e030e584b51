package weather

import (
	"strings"
	"testing"
)

func TestAmbientMapping(t *testing.T) {
	cases := []struct {
		name string
		c    *Conditions
		want string
	}{
		{"storm wins over rain", &Conditions{IsStorm: true, IsRain: true}, "rattling"},
		{"snow", &Conditions{IsSnow: true, Temp: -2}, "snow"},
		{"rain", &Conditions{IsRain: true, Temp: 12}, "rain"},
		{"hot", &Conditions{Temp: 31}, "too hot"},
		{"cold", &Conditions{Temp: 2}, "brr"},
		{"mild", &Conditions{Temp: 18}, "lovely"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Ambient(c.c, 12)
			if !strings.Contains(got, c.want) {
				t.Fatalf("Ambient(%+v) = %q, want substring %q", c.c, got, c.want)
			}
		})
	}
}

func TestAmbientFallbackByHour(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{3, "night"},
		{9, "morning"},
		{15, "afternoon"},
		{21, "evening"},
	}
	for _, c := range cases {
		got := Ambient(nil, c.hour)
		if !strings.Contains(got, c.want) {
			t.Errorf("Ambient(nil, %d) = %q, want substring %q", c.hour, got, c.want)
		}
	}
}

func TestNewClientDisabledWithoutKey(t *testing.T) {
	if NewClient("", "Seattle,US") != nil {
		t.Fatal("expected nil client without an API key")
	}
	if NewClient("key", "") == nil {
		t.Fatal("expected a client with a key and default location")
	}
}
