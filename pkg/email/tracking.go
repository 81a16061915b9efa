package email

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*"(https?://[^"]+)"`)

// Tracker rewrites outgoing HTML so opens, clicks and unsubscribes reach the
// tracking endpoints under BaseURL. An empty BaseURL disables tracking.
type Tracker struct {
	BaseURL string
}

func (t Tracker) base() string {
	return strings.TrimRight(t.BaseURL, "/")
}

func (t Tracker) ClickURL(sendID, target string) string {
	return fmt.Sprintf("%s/t/click/%s?url=%s", t.base(), url.PathEscape(sendID), url.QueryEscape(target))
}

func (t Tracker) OpenURL(sendID string) string {
	return fmt.Sprintf("%s/t/open/%s.gif", t.base(), url.PathEscape(sendID))
}

func (t Tracker) UnsubscribeURL(sendID, subscriberID string) string {
	return fmt.Sprintf("%s/u/%s?send=%s", t.base(), url.PathEscape(subscriberID), url.QueryEscape(sendID))
}

// Inject returns msg with click rewriting, an open pixel and an unsubscribe
// link and header added. Links already pointing at BaseURL are left alone.
func (t Tracker) Inject(msg Message, sendID, subscriberID string) Message {
	if t.BaseURL == "" {
		return msg
	}

	unsubscribe := t.UnsubscribeURL(sendID, subscriberID)

	headers := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		headers[k] = v
	}

	headers["List-Unsubscribe"] = "<" + unsubscribe + ">"
	msg.Headers = headers

	if msg.Text != "" {
		msg.Text += "\n\nUnsubscribe: " + unsubscribe
	}

	if msg.HTML == "" {
		return msg
	}

	body := hrefPattern.ReplaceAllStringFunc(msg.HTML, func(match string) string {
		target := html.UnescapeString(hrefPattern.FindStringSubmatch(match)[1])
		if strings.HasPrefix(target, t.base()) {
			return match
		}

		return `href="` + t.ClickURL(sendID, target) + `"`
	})

	footer := fmt.Sprintf(`<p><a href="%s">Unsubscribe</a></p><img src="%s" width="1" height="1" alt="" />`,
		unsubscribe, t.OpenURL(sendID))

	if idx := strings.LastIndex(strings.ToLower(body), "</body>"); idx >= 0 {
		body = body[:idx] + footer + body[idx:]
	} else {
		body += footer
	}

	msg.HTML = body

	return msg
}
