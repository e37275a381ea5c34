package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linkJSON = `{
	"id": "clx123",
	"domain": "dub.sh",
	"key": "promo",
	"url": "https://example.com/landing",
	"shortLink": "https://dub.sh/promo",
	"archived": false,
	"tags": [{"id": "t1", "name": "launch", "color": "blue"}, {"id": "t2", "name": ""}],
	"utm_source": "newsletter",
	"clicks": 42,
	"leads": 3,
	"sales": 1,
	"saleAmount": 1999,
	"createdAt": "2024-05-01T10:00:00.000Z",
	"updatedAt": "2024-05-02T10:00:00.000Z"
}`

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"Link not found."}}`))
}

func TestLink_Helpers(t *testing.T) {
	var l Link
	require.NoError(t, json.Unmarshal([]byte(linkJSON), &l))

	assert.Equal(t, []string{"launch"}, l.TagNames())
	assert.Equal(t, 2024, l.Created().Year())
	assert.Equal(t, map[string]string{"utm_source": "newsletter"}, l.UTM())
	assert.Equal(t, 1999, l.SaleAmount)
}

func TestGetLink(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/links/clx123":
			_, _ = w.Write([]byte(linkJSON))
		default:
			notFound(w)
		}
	})

	link, err := c.GetLink(context.Background(), "clx123")
	require.NoError(t, err)
	assert.Equal(t, "https://dub.sh/promo", link.ShortLink)
	assert.Equal(t, 42, link.Clicks)

	missing, err := c.GetLink(context.Background(), "clx_missing")
	assert.NoError(t, err, "404 is a valid lookup outcome")
	assert.Nil(t, missing)
}

func TestGetLink_OtherErrorsPropagate(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.GetLink(context.Background(), "clx123")
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}

func TestLookupLink(t *testing.T) {
	queries := make(chan url.Values, 2)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/links/info", r.URL.Path)
		q := r.URL.Query()
		queries <- q
		if q.Get("key") == "promo" {
			_, _ = w.Write([]byte(linkJSON))
			return
		}
		notFound(w)
	})

	link, err := c.LookupLink(context.Background(), LinkLookup{Domain: "dub.sh", Key: "promo"})
	require.NoError(t, err)
	assert.Equal(t, "clx123", link.ID)
	assert.Equal(t, url.Values{"domain": {"dub.sh"}, "key": {"promo"}}, <-queries)

	link, err = c.LookupLink(context.Background(), LinkLookup{ExternalID: "ext-9"})
	require.NoError(t, err)
	assert.Nil(t, link)
	assert.Equal(t, url.Values{"externalId": {"ext-9"}}, <-queries)
}

func TestDeleteLink(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/links/clx123" {
			_, _ = w.Write([]byte(`{"id":"clx123"}`))
			return
		}
		notFound(w)
	})

	deleted, err := c.DeleteLink(context.Background(), "clx123")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.DeleteLink(context.Background(), "clx_gone")
	assert.NoError(t, err, "already absent is not an error")
	assert.False(t, deleted)
}

func TestCreateLink_OmitsEmptyFields(t *testing.T) {
	bodies := make(chan string, 1)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		_, _ = w.Write([]byte(linkJSON))
	})

	req := &CreateLinkRequest{URL: "https://example.com/landing", Domain: "dub.sh", TagNames: []string{"launch"}}
	req.SetUTM("utm_source", "newsletter")
	req.SetUTM("utm_bogus", "ignored")

	link, err := c.CreateLink(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "promo", link.Key)
	assert.JSONEq(t, `{
		"url": "https://example.com/landing",
		"domain": "dub.sh",
		"tagNames": ["launch"],
		"utm_source": "newsletter"
	}`, <-bodies)
}

func TestUpdateLink(t *testing.T) {
	bodies := make(chan string, 1)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/links/clx123", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		_, _ = w.Write([]byte(linkJSON))
	})

	dest := "https://example.com/new"
	archived := true
	req := &UpdateLinkRequest{URL: &dest, Archived: &archived}
	assert.False(t, req.Empty())
	assert.True(t, (&UpdateLinkRequest{}).Empty())

	_, err := c.UpdateLink(context.Background(), "clx123", req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com/new","archived":true}`, <-bodies)
}

func TestListLinks_Query(t *testing.T) {
	queries := make(chan url.Values, 1)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		_, _ = w.Write([]byte(`[` + linkJSON + `]`))
	})

	links, err := c.ListLinks(context.Background(), ListOptions{
		Domain:   "dub.sh",
		TagNames: []string{"a", "b"},
		TagIDs:   []string{"t1"},
		Search:   "promo",
		Sort:     "clicks",
		PageSize: 500,
	}, 3)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	assert.Equal(t, url.Values{
		"sort":     {"clicks"},
		"page":     {"3"},
		"pageSize": {"100"},
		"domain":   {"dub.sh"},
		"tagNames": {"a,b"},
		"tagIds":   {"t1"},
		"search":   {"promo"},
	}, <-queries)
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		domain     string
		serve      map[string]bool // request signature -> found
		wantID     bool
		wantCalls  []string
	}{
		{
			name:       "id prefix found directly",
			identifier: "clx123",
			serve:      map[string]bool{"id:clx123": true},
			wantID:     true,
			wantCalls:  []string{"id:clx123"},
		},
		{
			name:       "id prefix falls through to external id",
			identifier: "ext_42",
			serve:      map[string]bool{"ext:ext_42": true},
			wantID:     true,
			wantCalls:  []string{"id:ext_42", "ext:ext_42"},
		},
		{
			name:       "key with domain",
			identifier: "promo",
			domain:     "dub.sh",
			serve:      map[string]bool{"key:dub.sh/promo": true},
			wantID:     true,
			wantCalls:  []string{"key:dub.sh/promo"},
		},
		{
			name:       "key without domain tries external id only",
			identifier: "promo",
			wantCalls:  []string{"ext:promo"},
		},
		{
			name:       "not found anywhere",
			identifier: "link_zzz",
			domain:     "dub.sh",
			wantCalls:  []string{"id:link_zzz", "key:dub.sh/link_zzz", "ext:link_zzz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := make(chan string, 8)
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var sig string
				q := r.URL.Query()
				switch {
				case r.URL.Path != "/links/info":
					sig = "id:" + r.URL.Path[len("/links/"):]
				case q.Get("externalId") != "":
					sig = "ext:" + q.Get("externalId")
				default:
					sig = "key:" + q.Get("domain") + "/" + q.Get("key")
				}
				calls <- sig
				if tt.serve[sig] {
					_, _ = w.Write([]byte(linkJSON))
					return
				}
				notFound(w)
			})

			link, err := c.ResolveLink(context.Background(), tt.identifier, tt.domain)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, link != nil)

			close(calls)
			var got []string
			for sig := range calls {
				got = append(got, sig)
			}
			assert.Equal(t, tt.wantCalls, got)
		})
	}
}

func TestLooksLikeID(t *testing.T) {
	assert.True(t, LooksLikeID("clx1abc"))
	assert.True(t, LooksLikeID("link_1"))
	assert.True(t, LooksLikeID("ext_1"))
	assert.False(t, LooksLikeID("my-link"))
	assert.False(t, LooksLikeID("CLX1"))
}
