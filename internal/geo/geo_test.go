package geo

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sterdam/murmur-sub001/internal/models"
)

func TestHeaderResolver(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
		wantErr bool
	}{
		{"cloudflare header", map[string]string{"CF-IPCountry": "FR"}, "FR", false},
		{"gateway header", map[string]string{"X-Country-Code": "us"}, "US", false},
		{"cloudflare wins", map[string]string{"CF-IPCountry": "FR", "X-Country-Code": "US"}, "FR", false},
		{"whitespace trimmed", map[string]string{"X-Country-Code": " de "}, "DE", false},
		{"no header", nil, "", true},
		{"not two letters", map[string]string{"CF-IPCountry": "FRA"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, err := HeaderResolver{}.Country(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Country() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Country() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fixedResolver struct {
	country string
	err     error
}

func (r fixedResolver) Country(*http.Request) (string, error) {
	return r.country, r.err
}

func TestGate_Admit(t *testing.T) {
	errResolve := errors.New("resolve failed")
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	tests := []struct {
		name     string
		regions  []string
		resolver Resolver
		strict   bool
		want     bool
	}{
		{"no regions always admitted", nil, fixedResolver{err: errResolve}, true, true},
		{"country in allow list", []string{"FR", "US"}, fixedResolver{country: "US"}, false, true},
		{"case insensitive match", []string{"fr"}, fixedResolver{country: "FR"}, false, true},
		{"country not allowed", []string{"FR"}, fixedResolver{country: "CN"}, false, false},
		{"resolve failure lenient", []string{"FR"}, fixedResolver{err: errResolve}, false, true},
		{"resolve failure strict", []string{"FR"}, fixedResolver{err: errResolve}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{ID: "u1", AllowedRegions: tt.regions}
			gate := NewGate(tt.resolver, tt.strict)
			if got := gate.Admit(user, req); got != tt.want {
				t.Errorf("Admit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGate_AdmitNilUser(t *testing.T) {
	gate := NewGate(fixedResolver{}, true)
	if !gate.Admit(nil, httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("Admit(nil user) = false, want true")
	}
}
