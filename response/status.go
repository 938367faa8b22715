package response

// reasonPhrases covers at least the statuses spec.md §4.5 names, plus a
// few more any of this server's code paths can emit.
var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	500: "Internal Server Error",
}

// ReasonPhrase returns the canonical reason phrase for status, or
// "Unknown" if this server never emits that status.
func ReasonPhrase(status int) string {
	if p, ok := reasonPhrases[status]; ok {
		return p
	}
	return "Unknown"
}
