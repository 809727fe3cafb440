package caption

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/streamboard/streamboard/internal/contracts"
)

var ErrUnknownPlatform = errors.New("unknown platform key")

const (
	PlatformIMVUFeed  = "imvu_feed"
	PlatformIGFeed    = "ig_feed"
	PlatformRequest   = "request"
	PlatformEndStream = "end_stream"
)

const dueDateLayout = "Jan 2, 2006"

// defaultTemplates back every platform so rendering always has a template to
// fall back to when an organization profile carries none.
var defaultTemplates = map[string]string{
	PlatformIMVUFeed:  "Now streaming for {agency_name}! Featuring {item_names}. Product IDs: {product_ids}. Live until {due_date}.",
	PlatformIGFeed:    "New {stream_type} stream from {agency_name}, featuring {item_names}. Save the date: {due_date}!",
	PlatformRequest:   "Hi {creator_name}! We would love to feature {item_name} (shop id {creator_shop_id}) in our upcoming {stream_type} stream for {agency_name}, due {due_date}.",
	PlatformEndStream: "Thank you {creator_name}! {item_name} was featured in today's {stream_type} stream for {agency_name}.",
}

func KnownPlatform(key string) bool {
	_, ok := defaultTemplates[key]
	return ok
}

// PerItemPlatform reports whether a platform renders one caption per line
// item. Feed platforms fan all items into a single caption instead.
func PerItemPlatform(key string) bool {
	return key == PlatformRequest || key == PlatformEndStream
}

func Platforms() []string {
	keys := make([]string, 0, len(defaultTemplates))
	for key := range defaultTemplates {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ResolveTemplate returns the organization's template for the platform when
// present and non-empty, and the built-in default otherwise.
func ResolveTemplate(platform string, org *contracts.OrganizationProfile) (string, error) {
	fallback, ok := defaultTemplates[platform]
	if !ok {
		return "", ErrUnknownPlatform
	}
	if org != nil {
		if tpl, ok := org.Templates[platform]; ok && strings.TrimSpace(tpl) != "" {
			return tpl, nil
		}
	}
	return fallback, nil
}

// Render substitutes every {variable} placeholder in tpl in a single pass.
// Substituted values are never re-scanned, so a value containing a brace
// cannot inject another placeholder. Recognized but empty variables use
// their fallback literal; unrecognized placeholder names render as nothing;
// anything not shaped like a placeholder passes through verbatim.
func Render(tpl string, record contracts.StreamRecord, item *contracts.LineItem) string {
	var b strings.Builder
	b.Grow(len(tpl))

	for i := 0; i < len(tpl); {
		if tpl[i] != '{' {
			b.WriteByte(tpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tpl[i:], '}')
		if end < 0 {
			b.WriteString(tpl[i:])
			break
		}
		name := tpl[i+1 : i+end]
		if !placeholderName(name) {
			b.WriteByte('{')
			i++
			continue
		}
		value, recognized := resolve(name, record, item)
		if recognized {
			b.WriteString(value)
		}
		i += end + 1
	}
	return b.String()
}

func placeholderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func resolve(name string, record contracts.StreamRecord, item *contracts.LineItem) (string, bool) {
	switch name {
	case "item_name":
		return orFallback(itemField(item, func(it contracts.LineItem) string { return it.Name }), "Item"), true
	case "creator_name":
		return orFallback(itemField(item, func(it contracts.LineItem) string { return it.CreatorName }), "Creator"), true
	case "creator_shop_id":
		return itemField(item, func(it contracts.LineItem) string { return it.CreatorID }), true
	case "agency_name":
		return orFallback(record.OrganizationName, "Agency"), true
	case "stream_type":
		return record.Category, true
	case "due_date":
		return dueDate(record.DueAt), true
	case "item_names":
		return joinItems(record.Items, func(it contracts.LineItem) string { return it.Name }), true
	case "product_ids":
		return joinItems(record.Items, func(it contracts.LineItem) string { return it.ExternalID }), true
	default:
		return "", false
	}
}

func itemField(item *contracts.LineItem, get func(contracts.LineItem) string) string {
	if item == nil {
		return ""
	}
	return get(*item)
}

func orFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func dueDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dueDateLayout)
}

func joinItems(items []contracts.LineItem, get func(contracts.LineItem) string) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if v := strings.TrimSpace(get(it)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// Result carries either one combined caption (feed platforms) or one caption
// per line item keyed by item id.
type Result struct {
	Combined string            `json:"combined,omitempty"`
	PerItem  map[string]string `json:"per_item,omitempty"`
}

// GenerateForPlatform renders a stream's caption(s) for one platform key.
// Feed platforms fan all items into a single string through the aggregate
// variables; request and end_stream address a single creator and therefore
// produce one caption per item.
func GenerateForPlatform(platform string, record contracts.StreamRecord, org *contracts.OrganizationProfile) (Result, error) {
	tpl, err := ResolveTemplate(platform, org)
	if err != nil {
		return Result{}, err
	}

	if !PerItemPlatform(platform) {
		return Result{Combined: Render(tpl, record, nil)}, nil
	}

	perItem := make(map[string]string, len(record.Items))
	for _, item := range record.Items {
		it := item
		perItem[item.ID] = Render(tpl, record, &it)
	}
	return Result{PerItem: perItem}, nil
}
