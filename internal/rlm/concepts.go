package rlm

// conceptIndex maps a closed vocabulary of concept keys to related term
// sets. Used by the enhanced matcher to expand query tokens so that a query
// for "glicko" also matches sessions that only mention "rating" or "elo".
var conceptIndex = map[string][]string{
	// rating systems
	"glicko": {"rating", "elo", "chess", "leaderboard", "rank", "score"},
	"elo":    {"rating", "glicko", "chess", "rank", "score"},

	// technical
	"rlm":   {"memory", "retrieval", "search", "context", "transcript"},
	"jsonl": {"json", "log", "transcript", "session", "file"},
	"oauth": {"auth", "authentication", "token", "login", "security"},
	"jwt":   {"token", "auth", "authentication", "bearer"},
	"wsl":   {"windows", "linux", "subsystem", "ubuntu"},

	// platforms
	"whatsapp": {"message", "chat", "channel", "phone"},
	"telegram": {"message", "chat", "channel", "bot"},
	"discord":  {"message", "chat", "channel", "server", "guild"},
	"slack":    {"message", "chat", "channel", "workspace"},

	// languages / docs
	"typescript": {"javascript", "node", "code"},
	"python":     {"script", "code"},
	"markdown":   {"readme", "docs", "documentation"},

	// infrastructure
	"kubernetes": {"k8s", "container", "pod", "deployment", "cluster"},
	"k8s":        {"kubernetes", "container", "pod", "deployment", "cluster"},
	"docker":     {"container", "image", "dockerfile", "compose"},
	"cicd":       {"pipeline", "deploy", "build", "github", "actions"},

	// security
	"ssl": {"tls", "https", "certificate", "encryption", "secure"},
	"tls": {"ssl", "https", "certificate", "encryption", "secure"},

	// testing
	"e2e":  {"playwright", "cypress", "test", "browser"},
	"unit": {"test", "jest", "pytest", "mock"},

	// frontend
	"css":   {"style", "stylesheet", "tailwind", "sass", "scss"},
	"react": {"component", "jsx", "tsx", "hooks", "state"},
}

// relatedConcepts returns the expansion terms for a token. Besides direct
// lookup, a token that appears inside some concept's related set pulls in
// that concept and its siblings (capped at 5).
func relatedConcepts(token string) []string {
	if terms, ok := conceptIndex[token]; ok {
		return terms
	}

	var related []string
	seen := map[string]struct{}{token: {}}
	add := func(t string) {
		if _, ok := seen[t]; ok || len(related) >= 5 {
			return
		}
		seen[t] = struct{}{}
		related = append(related, t)
	}

	for concept, terms := range conceptIndex {
		for _, t := range terms {
			if t == token {
				add(concept)
				for _, sib := range terms {
					add(sib)
				}
				break
			}
		}
	}
	return related
}
