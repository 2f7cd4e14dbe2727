package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
)

func testConn(instanceURL string) domain.Connection {
	return domain.Connection{
		ID:          "conn-1",
		InstanceURL: instanceURL,
		AccessToken: "access-1",
	}
}

func TestClient_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/data/v60.0/query", r.URL.Path)
		require.Equal(t, "SELECT Id FROM Account", r.URL.Query().Get("q"))
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"totalSize": 2,
			"done": true,
			"records": [{"Id":"001xx01"},{"Id":"001xx02"}]
		}`))
	}))
	defer srv.Close()

	client := NewClient(nil, "")
	res, err := client.Query(context.Background(), testConn(srv.URL), "SELECT Id FROM Account")
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalSize)
	require.True(t, res.Done)
	require.Len(t, res.Records, 2)
}

func TestClient_Describe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/data/v60.0/sobjects/Contact/describe", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Contact","fields":[]}`))
	}))
	defer srv.Close()

	client := NewClient(nil, "")
	doc, err := client.Describe(context.Background(), testConn(srv.URL), "Contact")
	require.NoError(t, err)
	require.Contains(t, string(doc), `"name":"Contact"`)
}

func TestClient_CreateRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/services/data/v60.0/sobjects/Lead", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"00Qxx01","success":true}`))
	}))
	defer srv.Close()

	client := NewClient(nil, "")
	res, err := client.CreateRecord(context.Background(), testConn(srv.URL), "Lead", map[string]any{
		"LastName": "Smith",
		"Company":  "Acme",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "00Qxx01", res.ID)
}

func TestClient_UpstreamErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`[{"message":"unexpected token","errorCode":"MALFORMED_QUERY"}]`))
	}))
	defer srv.Close()

	client := NewClient(nil, "")
	_, err := client.Query(context.Background(), testConn(srv.URL), "SELECT FROM nothing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Contains(t, apiErr.Body, "MALFORMED_QUERY")
}
