package services_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/n9te9/federation-benchmark/services"
	"github.com/n9te9/federation-benchmark/services/inventory"
	"github.com/n9te9/federation-benchmark/services/reviews"
	"github.com/stretchr/testify/require"
)

func startCluster(t *testing.T) map[string]string {
	t.Helper()

	options := services.DefaultOptions()
	for i := range options {
		options[i].Port = 0
	}

	cluster, err := services.Start(context.Background(), "127.0.0.1", options, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cluster.Close() })

	urls := make(map[string]string)
	for _, e := range cluster.Endpoints() {
		urls[e.Name] = e.URL
	}
	require.Len(t, urls, 4)
	return urls
}

func post(t *testing.T, url, query string, variables map[string]any) map[string]any {
	t.Helper()

	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Nil(t, out["errors"], "unexpected errors: %v", out["errors"])
	return out["data"].(map[string]any)
}

func TestCluster_ServiceSDL(t *testing.T) {
	urls := startCluster(t)

	data := post(t, urls[reviews.Name], `{ _service { sdl } }`, nil)
	require.Equal(t, reviews.SDL, data["_service"].(map[string]any)["sdl"])
}

func TestCluster_RootFields(t *testing.T) {
	urls := startCluster(t)

	data := post(t, urls["accounts"], `{ me { id name username } }`, nil)
	require.Equal(t, map[string]any{"id": "1", "name": "Ada Lovelace", "username": "@ada"}, data["me"])

	data = post(t, urls["products"], `{ topProducts(first: 2) { upc name price weight } }`, nil)
	require.Equal(t, []any{
		map[string]any{"upc": "1", "name": "Table", "price": float64(899), "weight": float64(100)},
		map[string]any{"upc": "2", "name": "Couch", "price": float64(1299), "weight": float64(1000)},
	}, data["topProducts"])
}

func TestCluster_Entities(t *testing.T) {
	urls := startCluster(t)

	query := `query($representations: [_Any!]!) {
  _entities(representations: $representations) {
    ... on Product { upc inStock shippingEstimate }
  }
}`
	data := post(t, urls[inventory.Name], query, map[string]any{
		"representations": []any{
			map[string]any{"__typename": "Product", "upc": "1", "price": 899, "weight": 100},
			map[string]any{"__typename": "Product", "upc": "2", "price": 1299, "weight": 1000},
		},
	})
	require.Equal(t, []any{
		map[string]any{"upc": "1", "inStock": true, "shippingEstimate": float64(50)},
		map[string]any{"upc": "2", "inStock": false, "shippingEstimate": float64(0)},
	}, data["_entities"])

	query = `query($representations: [_Any!]!) {
  _entities(representations: $representations) {
    ... on User { id reviews { body product { upc } } }
  }
}`
	data = post(t, urls[reviews.Name], query, map[string]any{
		"representations": []any{map[string]any{"__typename": "User", "id": "2"}},
	})
	require.Equal(t, []any{
		map[string]any{"id": "2", "reviews": []any{
			map[string]any{"body": "Could be better.", "product": map[string]any{"upc": "3"}},
			map[string]any{"body": "Prefer something else.", "product": map[string]any{"upc": "1"}},
		}},
	}, data["_entities"])
}

func TestStart_UnknownService(t *testing.T) {
	_, err := services.Start(context.Background(), "127.0.0.1", []services.Option{{Name: "shipping"}}, nil)
	require.Error(t, err)
}
