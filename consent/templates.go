package consent

import "html/template"

// Page templates. These are deliberately plain: the consent surface is a
// small fixed set of forms, and the host deployment restyles via CSS served
// from the same origin.

var pageTemplates = template.Must(template.New("pages").Parse(consentTmpl + chargeTmpl + topupTmpl + doneTmpl + errorTmpl))

const consentTmpl = `{{define "consent" -}}
<!DOCTYPE html>
<html lang="{{.Locale}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Client.Name}} — Kimlik</title>
<link rel="stylesheet" href="/static/consent.css">
</head>
<body class="kimlik-consent">
<main>
	{{if .Client.LogoURL}}<img class="client-logo" src="{{.Client.LogoURL}}" alt="">{{end}}
	<h1>{{.Client.Name}}</h1>
	<p class="subtitle">{{.T.WantsAccess}} <strong>{{.User.Email}}</strong></p>
	<ul class="scopes">
	{{range .Scopes}}
		<li>
			<span class="scope-title">{{.Title}}</span>
			{{if .Description}}<span class="scope-desc">{{.Description}}</span>{{end}}
		</li>
	{{end}}
	</ul>
	<form method="POST" action="/oauth/authorize">
		<input type="hidden" name="ticket" value="{{.Ticket}}">
		<input type="hidden" name="locale" value="{{.Locale}}">
		<button type="submit" name="decision" value="deny" class="secondary">{{.T.Deny}}</button>
		<button type="submit" name="decision" value="allow" class="primary">{{.T.Allow}}</button>
	</form>
	{{if .Client.WebsiteURL}}<p class="client-site"><a href="{{.Client.WebsiteURL}}" rel="noopener noreferrer">{{.Client.WebsiteURL}}</a></p>{{end}}
</main>
</body>
</html>
{{- end}}`

const chargeTmpl = `{{define "charge" -}}
<!DOCTYPE html>
<html lang="{{.Locale}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.T.PaymentTitle}} — Kimlik</title>
<link rel="stylesheet" href="/static/consent.css">
</head>
<body class="kimlik-charge">
<main>
	{{if .Client.LogoURL}}<img class="client-logo" src="{{.Client.LogoURL}}" alt="">{{end}}
	<h1>{{.Client.Name}}</h1>
	<p class="amount">{{printf "%.2f" .Charge.Amount}} {{.Charge.Currency}}</p>
	{{if .Charge.Description}}<p class="description">{{.Charge.Description}}</p>{{end}}
	<p class="balance">{{.T.WalletBalance}} {{printf "%.2f" .Wallet.Balance}} {{.Wallet.Currency}}</p>
	{{if .Charge.IsExpired}}<p class="warning">{{.T.ChargeExpired}}</p>{{end}}
	{{if not .Wallet.Sufficient}}<p class="warning">{{.T.InsufficientBalance}}</p>{{end}}
	<form method="POST" action="/oauth/approve/{{.Charge.ID}}">
		<input type="hidden" name="ticket" value="{{.Ticket}}">
		<input type="hidden" name="locale" value="{{.Locale}}">
		{{if .ApproveEnabled}}
		<label class="auto-approve">
			<input type="checkbox" name="auto_approve" value="on"{{if .AutoApprove.Enabled}} checked{{end}}>
			{{printf .T.AutoApprove .Client.Name}}
			<input type="number" name="auto_approve_limit" step="0.01" min="0" value="{{printf "%.2f" .AutoApprove.MaxAmount}}"> {{.Charge.Currency}}
		</label>
		{{end}}
		<button type="submit" name="decision" value="reject" class="secondary">{{.T.Reject}}</button>
		<button type="submit" name="decision" value="approve" class="primary"{{if not .ApproveEnabled}} disabled{{end}}>{{.T.Approve}}</button>
	</form>
</main>
</body>
</html>
{{- end}}`

const topupTmpl = `{{define "topup" -}}
<!DOCTYPE html>
<html lang="{{.Locale}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.T.TopupTitle}} — Kimlik</title>
<link rel="stylesheet" href="/static/consent.css">
</head>
<body class="kimlik-topup">
<main>
	{{if .Client.LogoURL}}<img class="client-logo" src="{{.Client.LogoURL}}" alt="">{{end}}
	<h1>{{printf .T.TopupVia .Client.Name}}</h1>
	<p class="balance">{{.T.WalletBalance}} {{printf "%.2f" .Wallet.Balance}} {{.Wallet.Currency}}</p>
	<form method="POST" action="/oauth/topup">
		<input type="hidden" name="ticket" value="{{.Ticket}}">
		<input type="hidden" name="locale" value="{{.Locale}}">
		<label>{{.T.Amount}}
			<input type="number" name="amount" step="0.01" min="0.01" required> {{.Wallet.Currency}}
		</label>
		<button type="submit" name="decision" value="cancel" class="secondary" formnovalidate>{{.T.Cancel}}</button>
		<button type="submit" name="decision" value="confirm" class="primary">{{.T.TopupSubmit}}</button>
	</form>
</main>
</body>
</html>
{{- end}}`

const doneTmpl = `{{define "done" -}}
<!DOCTYPE html>
<html lang="{{.Locale}}">
<head>
<meta charset="utf-8">
<title>Kimlik</title>
<link rel="stylesheet" href="/static/consent.css">
</head>
<body class="kimlik-done">
<main>
	<p>{{.Heading}}</p>
	<p class="hint">{{.T.CloseHint}}</p>
</main>
<script>
(function () {
	var payload = {{.Payload}};
	if (payload && window.opener && !window.opener.closed) {
		window.opener.postMessage(payload, {{.TargetOrigin}});
		setTimeout(function () { window.close(); }, {{.CloseDelayMS}});
	} else if ({{.RedirectURI}}) {
		window.location.replace({{.RedirectURI}});
	}
})();
</script>
</body>
</html>
{{- end}}`

const errorTmpl = `{{define "error" -}}
<!DOCTYPE html>
<html lang="{{.Locale}}">
<head>
<meta charset="utf-8">
<title>Kimlik</title>
<link rel="stylesheet" href="/static/consent.css">
</head>
<body class="kimlik-error">
<main>
	<h1>{{.T.ErrorTitle}}</h1>
	<p class="error">{{.Message}}</p>
	<p class="hint">{{.T.ErrorHint}}</p>
	<button onclick="window.close()">{{.T.CloseLabel}}</button>
</main>
</body>
</html>
{{- end}}`
