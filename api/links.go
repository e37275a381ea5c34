package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Tag is a label attached to a link.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Link is a short link as returned by the API.
type Link struct {
	ID          string `json:"id"`
	Domain      string `json:"domain"`
	Key         string `json:"key"`
	URL         string `json:"url"`
	ShortLink   string `json:"shortLink"`
	Archived    bool   `json:"archived"`
	ExternalID  string `json:"externalId,omitempty"`
	Comments    string `json:"comments,omitempty"`
	Tags        []Tag  `json:"tags,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	Clicks      int    `json:"clicks"`
	Leads       int    `json:"leads"`
	Sales       int    `json:"sales"`
	SaleAmount  int    `json:"saleAmount"` // cents
	LastClicked string `json:"lastClicked,omitempty"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// TagNames returns the names of the link's tags.
func (l *Link) TagNames() []string {
	names := make([]string, 0, len(l.Tags))
	for _, t := range l.Tags {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	return names
}

// Created parses CreatedAt. The zero time is returned if it is malformed.
func (l *Link) Created() time.Time {
	t, _ := time.Parse(time.RFC3339, l.CreatedAt)
	return t
}

// UTM returns the link's non-empty utm_* parameters keyed by full name.
func (l *Link) UTM() map[string]string {
	out := make(map[string]string)
	for k, v := range map[string]string{
		"utm_source":   l.UTMSource,
		"utm_medium":   l.UTMMedium,
		"utm_campaign": l.UTMCampaign,
		"utm_term":     l.UTMTerm,
		"utm_content":  l.UTMContent,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// CreateLinkRequest is the body for creating a link. Empty fields are omitted.
type CreateLinkRequest struct {
	URL         string   `json:"url"`
	Domain      string   `json:"domain,omitempty"`
	Key         string   `json:"key,omitempty"`
	ExternalID  string   `json:"externalId,omitempty"`
	TagIDs      []string `json:"tagIds,omitempty"`
	TagNames    []string `json:"tagNames,omitempty"`
	Comments    string   `json:"comments,omitempty"`
	UTMSource   string   `json:"utm_source,omitempty"`
	UTMMedium   string   `json:"utm_medium,omitempty"`
	UTMCampaign string   `json:"utm_campaign,omitempty"`
	UTMTerm     string   `json:"utm_term,omitempty"`
	UTMContent  string   `json:"utm_content,omitempty"`
}

// SetUTM assigns a utm_* parameter by its full name. Unknown names are ignored.
func (r *CreateLinkRequest) SetUTM(name, value string) {
	switch name {
	case "utm_source":
		r.UTMSource = value
	case "utm_medium":
		r.UTMMedium = value
	case "utm_campaign":
		r.UTMCampaign = value
	case "utm_term":
		r.UTMTerm = value
	case "utm_content":
		r.UTMContent = value
	}
}

// UpdateLinkRequest is a partial update; nil fields are left unchanged.
type UpdateLinkRequest struct {
	URL         *string  `json:"url,omitempty"`
	Key         *string  `json:"key,omitempty"`
	Archived    *bool    `json:"archived,omitempty"`
	TagNames    []string `json:"tagNames,omitempty"`
	Comments    *string  `json:"comments,omitempty"`
	UTMSource   *string  `json:"utm_source,omitempty"`
	UTMMedium   *string  `json:"utm_medium,omitempty"`
	UTMCampaign *string  `json:"utm_campaign,omitempty"`
}

// Empty reports whether the update changes nothing.
func (r *UpdateLinkRequest) Empty() bool {
	return r.URL == nil && r.Key == nil && r.Archived == nil && r.TagNames == nil &&
		r.Comments == nil && r.UTMSource == nil && r.UTMMedium == nil && r.UTMCampaign == nil
}

// MaxPageSize is the largest page the list endpoint serves.
const MaxPageSize = 100

// ListOptions filters a link listing.
type ListOptions struct {
	Domain   string
	TagIDs   []string
	TagNames []string
	Search   string
	Sort     string // createdAt (default), clicks, updatedAt, lastClicked
	PageSize int    // capped at MaxPageSize
}

func (o ListOptions) query(page, pageSize int) url.Values {
	q := url.Values{}
	sort := o.Sort
	if sort == "" {
		sort = "createdAt"
	}
	q.Set("sort", sort)
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	if o.Domain != "" {
		q.Set("domain", o.Domain)
	}
	if len(o.TagIDs) > 0 {
		q.Set("tagIds", strings.Join(o.TagIDs, ","))
	}
	if len(o.TagNames) > 0 {
		q.Set("tagNames", strings.Join(o.TagNames, ","))
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	return q
}

func (o ListOptions) pageSize() int {
	if o.PageSize <= 0 || o.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return o.PageSize
}

// LinkLookup identifies a link by domain and key or by external id.
type LinkLookup struct {
	Domain     string
	Key        string
	ExternalID string
}

func decodeLink(raw json.RawMessage) (*Link, error) {
	var link Link
	if err := json.Unmarshal(raw, &link); err != nil {
		return nil, fmt.Errorf("decode link: %w", err)
	}
	return &link, nil
}

// CreateLink creates one link.
func (c *Client) CreateLink(ctx context.Context, req *CreateLinkRequest) (*Link, error) {
	raw, err := c.Post(ctx, "/links", req)
	if err != nil {
		return nil, err
	}
	return decodeLink(raw)
}

// GetLink fetches a link by id. A missing link yields (nil, nil).
func (c *Client) GetLink(ctx context.Context, id string) (*Link, error) {
	raw, err := c.Get(ctx, "/links/"+url.PathEscape(id), nil)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeLink(raw)
}

// LookupLink fetches a link by domain+key or external id. A missing link
// yields (nil, nil).
func (c *Client) LookupLink(ctx context.Context, l LinkLookup) (*Link, error) {
	q := url.Values{}
	if l.ExternalID != "" {
		q.Set("externalId", l.ExternalID)
	}
	if l.Domain != "" {
		q.Set("domain", l.Domain)
	}
	if l.Key != "" {
		q.Set("key", l.Key)
	}
	raw, err := c.Get(ctx, "/links/info", q)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeLink(raw)
}

// UpdateLink applies a partial update to the link with the given id.
func (c *Client) UpdateLink(ctx context.Context, id string, req *UpdateLinkRequest) (*Link, error) {
	raw, err := c.Patch(ctx, "/links/"+url.PathEscape(id), req)
	if err != nil {
		return nil, err
	}
	return decodeLink(raw)
}

// DeleteLink deletes a link by id. It returns false when the link was already
// absent.
func (c *Client) DeleteLink(ctx context.Context, id string) (bool, error) {
	_, err := c.Delete(ctx, "/links/"+url.PathEscape(id), nil)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListLinks fetches one page (1-based) of links.
func (c *Client) ListLinks(ctx context.Context, opts ListOptions, page int) ([]Link, error) {
	raw, err := c.Get(ctx, "/links", opts.query(page, opts.pageSize()))
	if err != nil {
		return nil, err
	}
	var links []Link
	if len(raw) == 0 {
		return links, nil
	}
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("decode links page %d: %w", page, err)
	}
	return links, nil
}

// ListAllLinks walks pages in order until a short page or until limit links
// have been collected. A limit <= 0 means no limit.
func (c *Client) ListAllLinks(ctx context.Context, opts ListOptions, limit int) ([]Link, error) {
	return paginate(ctx, opts.pageSize(), limit, func(ctx context.Context, page int) ([]Link, error) {
		return c.ListLinks(ctx, opts, page)
	})
}

// Identifier prefixes that mark a value as a link id rather than a key.
var linkIDPrefixes = []string{"clx", "link_", "ext_"}

// LooksLikeID reports whether s has a link id prefix.
func LooksLikeID(s string) bool {
	for _, p := range linkIDPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ResolveLink finds a link from a user-supplied identifier: as an id when it
// has an id prefix, then by domain+key when domain is set, then as an
// external id. A link that cannot be found yields (nil, nil).
func (c *Client) ResolveLink(ctx context.Context, identifier, domain string) (*Link, error) {
	if LooksLikeID(identifier) {
		link, err := c.GetLink(ctx, identifier)
		if err != nil || link != nil {
			return link, err
		}
	}
	if domain != "" {
		link, err := c.LookupLink(ctx, LinkLookup{Domain: domain, Key: identifier})
		if err != nil || link != nil {
			return link, err
		}
	}
	return c.LookupLink(ctx, LinkLookup{ExternalID: identifier})
}
