package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "simple endpoint no params",
			key: CacheKey{
				Endpoint: "/api/status",
			},
			want: "mstr:api/status",
		},
		{
			name: "endpoint with path params",
			key: CacheKey{
				Endpoint:   "/api/v2/reports/{id}",
				PathParams: map[string]string{"id": "B7CA92F0"},
			},
			want: "mstr:api/v2/reports/{id}:id=B7CA92F0",
		},
		{
			name: "query params sorted",
			key: CacheKey{
				Endpoint: "/api/searches/results",
				QueryParams: url.Values{
					"type":   []string{"39"},
					"fields": []string{"id,name"},
				},
			},
			want: "mstr:api/searches/results:fields=id,name:type=39",
		},
		{
			name: "multi-valued query param",
			key: CacheKey{
				Endpoint:    "/api/objects",
				QueryParams: url.Values{"type": []string{"3", "55"}},
			},
			want: "mstr:api/objects:type=3,55",
		},
		{
			name: "project scoped",
			key: CacheKey{
				Endpoint:  "/api/v2/cubes/C1",
				ProjectID: "0C0D31E4",
			},
			want: "mstr:api/v2/cubes/C1:project=0C0D31E4",
		},
		{
			name: "complex key with all params",
			key: CacheKey{
				Endpoint:    "/api/reports/{id}/attributes/{attr}/elements",
				PathParams:  map[string]string{"id": "R1", "attr": "A1"},
				QueryParams: url.Values{"limit": []string{"50000"}, "offset": []string{"0"}},
				ProjectID:   "P1",
			},
			want: "mstr:api/reports/{id}/attributes/{attr}/elements:attr=A1:id=R1:limit=50000:offset=0:project=P1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheKey_Determinism(t *testing.T) {
	key := CacheKey{
		Endpoint: "/api/folders/{id}/contents",
		PathParams: map[string]string{
			"id":    "F1",
			"other": "X",
		},
		QueryParams: url.Values{
			"offset": []string{"0"},
			"limit":  []string{"1000"},
		},
		ProjectID: "P1",
	}

	first := key.String()
	for i := 0; i < 10; i++ {
		if got := key.String(); got != first {
			t.Errorf("iteration %d = %v, want %v (not deterministic)", i, got, first)
		}
	}
}
