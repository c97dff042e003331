package handler

import "net/http"

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Voice Scheduler</title></head>
<body>
<h1>Voice Scheduler</h1>
<p>Connect a voice client to <code>/ws</code>. Link your calendar at <a href="/auth/login">/auth/login</a>.</p>
</body>
</html>
`

// Index serves a minimal landing page at /.
func Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}
