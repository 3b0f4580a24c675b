package intel

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	CategoryMalware           = "Malware"
	CategoryPhishing          = "Phishing"
	CategoryScam              = "Scam"
	CategoryInjection         = "Injection"
	CategorySensitiveData     = "Sensitive Data"
	CategorySocialEngineering = "Social Engineering"
)

type textRule struct {
	name     string
	category string
	weight   int
	re       *regexp.Regexp
	advice   string
}

// RegexBundle scores submissions with keyword and URL pattern rules.
// It never performs network calls.
type RegexBundle struct {
	id      string
	version string

	rules     []textRule
	serviceRe *regexp.Regexp

	dangerousExts map[string]struct{}
}

// NewRegexBundle builds the built-in rule bundle.
func NewRegexBundle() *RegexBundle {
	return &RegexBundle{
		id:      "lightning-guard-heuristics",
		version: "0.1.0",

		rules: []textRule{
			{
				name:     "credential request",
				category: CategoryPhishing,
				weight:   30,
				re:       regexp.MustCompile(`(?i)\b(verify|confirm|update|validate)\s+(your\s+)?(account|password|identity|login|payment|billing)`),
				advice:   "Never enter credentials through links in unsolicited messages.",
			},
			{
				name:     "ip address link",
				category: CategoryPhishing,
				weight:   30,
				re:       regexp.MustCompile(`(?i)https?://\d{1,3}(\.\d{1,3}){3}`),
				advice:   "Do not open links that point to raw IP addresses.",
			},
			{
				name:     "punycode link",
				category: CategoryPhishing,
				weight:   25,
				re:       regexp.MustCompile(`(?i)https?://[^\s/]*xn--`),
				advice:   "Check links for look-alike characters before opening them.",
			},
			{
				name:     "credentials embedded in link",
				category: CategoryPhishing,
				weight:   20,
				re:       regexp.MustCompile(`(?i)https?://[^\s/@]+@`),
				advice:   "Be wary of links that hide their real destination after an @ sign.",
			},
			{
				name:     "shortened link",
				category: CategoryPhishing,
				weight:   15,
				re:       regexp.MustCompile(`(?i)https?://(bit\.ly|tinyurl\.com|t\.co|goo\.gl|is\.gd|ow\.ly|rb\.gy|cutt\.ly)/`),
				advice:   "Expand shortened links with a preview service before visiting.",
			},
			{
				name:     "prize or windfall",
				category: CategoryScam,
				weight:   25,
				re:       regexp.MustCompile(`(?i)\b(you('ve| have)\s+won|lottery|claim\s+your\s+(prize|reward|refund)|gift\s+card|inheritance)\b`),
				advice:   "Ignore unexpected prize or refund offers.",
			},
			{
				name:     "unusual payment method",
				category: CategoryScam,
				weight:   25,
				re:       regexp.MustCompile(`(?i)\b(wire\s+transfer|bitcoin|crypto\s*wallet|western\s+union|moneygram|processing\s+fee|send\s+money)\b`),
				advice:   "Do not send money or crypto to people you cannot verify.",
			},
			{
				name:     "secret code request",
				category: CategorySensitiveData,
				weight:   25,
				re:       regexp.MustCompile(`(?i)\b(otp|one[-\s]time\s+(pass)?code|verification\s+code|cvv|pin\s+code|social\s+security\s+number)\b`),
				advice:   "Legitimate organisations never ask for one-time codes or card security codes.",
			},
			{
				name:     "urgency pressure",
				category: CategorySocialEngineering,
				weight:   15,
				re:       regexp.MustCompile(`(?i)\b(urgent|immediately|within\s+24\s+hours|act\s+now|final\s+notice|(account|access)\s+(will\s+be\s+)?(suspended|locked|closed|terminated))\b`),
				advice:   "Slow down: urgency is a common manipulation tactic.",
			},
			{
				name:     "sql injection",
				category: CategoryInjection,
				weight:   35,
				re:       regexp.MustCompile(`(?i)(union\s+select|or\s+1=1|drop\s+table|information_schema|xp_cmdshell|sleep\(\d+\))`),
				advice:   "Do not run or forward the embedded database query.",
			},
			{
				name:     "command injection",
				category: CategoryInjection,
				weight:   35,
				re:       regexp.MustCompile(`(?i)(rm\s+-rf|chmod\s+777|wget\s+http|curl\s+http|bash\s+-c|powershell\s+-(command|enc))`),
				advice:   "Never paste the embedded shell command into a terminal.",
			},
			{
				name:     "prompt injection",
				category: CategoryInjection,
				weight:   30,
				re: regexp.MustCompile(`(?i)(ignore\s+(all\s+)?previous\s+instructions|forget(\s+all)?\s+prev.*instructions|` +
					`you\s+are\s+no\s+longer\s+bound\s+by|bypass\s+safety)`),
				advice: "Do not feed this text to AI assistants with access to your data.",
			},
		},

		serviceRe: regexp.MustCompile(`(?i)\b(paypal|apple|icloud|microsoft|office\s*365|outlook|amazon|netflix|google|gmail|facebook|instagram|whatsapp|dhl|fedex|ups|usps|irs|bank)\b`),

		dangerousExts: map[string]struct{}{
			".apk": {}, ".exe": {}, ".scr": {}, ".bat": {}, ".cmd": {}, ".com": {},
			".js": {}, ".vbs": {}, ".jar": {}, ".msi": {}, ".ps1": {}, ".hta": {},
		},
	}
}

func (b *RegexBundle) Status() Status {
	return Status{
		Enabled:       true,
		BundleID:      b.id,
		BundleVersion: b.version,
	}
}

// Analyze scores text and attachment file names. Each text rule counts
// once; every executable file name adds its own hit.
func (b *RegexBundle) Analyze(ctx context.Context, text string, filenames []string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}

	for _, rule := range b.rules {
		m := rule.re.FindString(text)
		if m == "" {
			continue
		}
		res.Hits = append(res.Hits, Hit{
			Rule:     rule.name,
			Category: rule.category,
			Weight:   rule.weight,
			Evidence: strings.TrimSpace(m),
			Advice:   rule.advice,
		})
	}

	for _, name := range filenames {
		if hit, ok := b.fileHit(name); ok {
			res.Hits = append(res.Hits, hit)
		}
	}

	seen := make(map[string]struct{})
	for _, m := range b.serviceRe.FindAllString(text, -1) {
		key := strings.ToLower(strings.Join(strings.Fields(m), " "))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		res.Services = append(res.Services, m)
	}

	for _, h := range res.Hits {
		res.Score += h.Weight
	}
	if res.Score > 100 {
		res.Score = 100
	}
	return res, nil
}

var decoyExts = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".txt": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".zip": {},
}

func (b *RegexBundle) fileHit(name string) (Hit, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	ext := filepath.Ext(lower)
	if _, ok := b.dangerousExts[ext]; !ok {
		return Hit{}, false
	}
	weight := 40
	rule := "executable attachment"
	// invoice.pdf.exe style names
	if _, ok := decoyExts[filepath.Ext(strings.TrimSuffix(lower, ext))]; ok {
		weight = 60
		rule = "disguised executable attachment"
	}
	return Hit{
		Rule:     rule,
		Category: CategoryMalware,
		Weight:   weight,
		Evidence: name,
		Advice:   "Do not open or install executable attachments from unknown senders.",
	}, true
}
