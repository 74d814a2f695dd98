package widget

import (
	"bytes"
	"fmt"
	"html/template"
)

// buttonLabels holds the sign-in button text per supported locale.
var buttonLabels = map[string]string{
	"az": "Kimlik ilə daxil ol",
	"en": "Sign in with Kimlik",
	"ru": "Войти через Kimlik",
}

// Label returns the button text for the widget's locale.
func (w *Widget) Label() string {
	return buttonLabels[w.cfg.Locale]
}

var snippetTmpl = template.Must(template.New("snippet").Parse(`<div id="{{.ContainerID}}" class="kimlik-widget kimlik-{{.Theme}} kimlik-{{.Size}}">
	<a class="kimlik-btn" href="{{.StartURL}}"{{if .Popup}} data-kimlik-popup data-kimlik-width="{{.PopupWidth}}" data-kimlik-height="{{.PopupHeight}}"{{end}} rel="nofollow">{{.Label}}</a>
</div>
<script>
(function () {
	var container = document.getElementById({{.ContainerID}});
	if (!container) return;

	function emit(name, detail) {
		var ev = new CustomEvent(name, {detail: detail, bubbles: true});
		container.dispatchEvent(ev);
		window.dispatchEvent(new CustomEvent(name, {detail: detail}));
	}

	var popup = null;
	var link = container.querySelector(".kimlik-btn");
	if (link.hasAttribute("data-kimlik-popup")) {
		link.addEventListener("click", function (e) {
			e.preventDefault();
			var w = {{.PopupWidth}}, h = {{.PopupHeight}};
			var left = Math.max(0, (screen.width - w) / 2);
			var top = Math.max(0, (screen.height - h) / 2);
			popup = window.open(link.href, "kimlik-auth",
				"width=" + w + ",height=" + h + ",left=" + left + ",top=" + top);
			if (!popup) {
				emit({{.EventError}}, {error: "popup_blocked"});
			}
		});
	}

	window.addEventListener("message", function (e) {
		if (e.origin !== {{.Origin}}) return;
		var m = e.data;
		if (!m || typeof m.type !== "string") return;
		switch (m.type) {
		case "oauth_success":
			emit({{.EventSuccess}}, m);
			break;
		case "oauth_denied":
		case "charge_rejected":
		case "topup_cancelled":
			emit({{.EventError}}, m);
			break;
		case "charge_approved":
		case "topup_completed":
			emit({{.EventSuccess}}, m);
			break;
		}
	});
})();
</script>
`))

type snippetData struct {
	ContainerID  string
	Theme        Theme
	Size         Size
	Label        string
	StartURL     string
	Popup        bool
	PopupWidth   int
	PopupHeight  int
	Origin       string
	EventSuccess string
	EventError   string
}

// Snippet renders the embeddable widget markup. startURL is the host
// application's endpoint that begins an authorization (it must generate a
// fresh state and PKCE pair per visit).
//
// The emitted script relays consent-window messages as kimlik:success and
// kimlik:error DOM events on the container and on window, after checking
// the sender origin against the Kimlik deployment.
func (w *Widget) Snippet(startURL string) (template.HTML, error) {
	if startURL == "" {
		return "", fmt.Errorf("widget: missing start URL")
	}
	var buf bytes.Buffer
	err := snippetTmpl.Execute(&buf, snippetData{
		ContainerID:  w.cfg.ContainerID,
		Theme:        w.cfg.Theme,
		Size:         w.cfg.Size,
		Label:        w.Label(),
		StartURL:     startURL,
		Popup:        w.cfg.Popup,
		PopupWidth:   w.cfg.PopupWidth,
		PopupHeight:  w.cfg.PopupHeight,
		Origin:       w.flow.Origin(),
		EventSuccess: EventSuccess,
		EventError:   EventError,
	})
	if err != nil {
		return "", fmt.Errorf("widget: render snippet: %w", err)
	}
	return template.HTML(buf.String()), nil
}
