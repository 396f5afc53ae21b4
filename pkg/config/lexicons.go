package config

import "strings"

// MatchKeyword reports whether a lexicon keyword occurs in the lowercased
// text. Multi-word phrases match as substrings; single words must land on
// word boundaries, so short entries like "upi", "pin", "won" do not fire
// inside "occupied", "hoping", "wonderful".
func MatchKeyword(lowerText, keyword string) bool {
	if strings.Contains(keyword, " ") {
		return strings.Contains(lowerText, keyword)
	}
	for from := 0; ; {
		i := strings.Index(lowerText[from:], keyword)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(keyword)
		if (start == 0 || !isWordByte(lowerText[start-1])) &&
			(end == len(lowerText) || !isWordByte(lowerText[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// Built-in lexicons. Deployments targeting other regions or languages should
// ship their own rules file via HONEYPOT_RULES_PATH; these defaults cover
// the common Indian banking/UPI scam vocabulary, including Hinglish urgency
// terms.

// defaultConfirmedKeywords flag explicit requests for money or credentials.
func defaultConfirmedKeywords() []string {
	return []string{
		"send money",
		"transfer money",
		"pay now",
		"upi",
		"otp",
		"one time password",
		"send otp",
		"share otp",
		"enter otp",
		"pin",
		"send pin",
		"share pin",
		"cvv",
		"card number",
		"bank transfer",
		"paytm",
		"gpay",
		"phonepe",
		"google pay",
		"bhim",
	}
}

// defaultSuspectedKeywords flag urgency, fear, and bait vocabulary.
func defaultSuspectedKeywords() []string {
	return []string{
		"urgent",
		"urgently",
		"immediately",
		"kyc",
		"blocked",
		"suspended",
		"frozen",
		"verify",
		"verification",
		"expire",
		"expiring",
		"legal action",
		"police",
		"arrest",
		"deadline",
		"last chance",
		"account will be",
		"turant",
		"abhi",
		"jaldi",
		"loan",
		"approved",
		"refund",
		"cashback",
		"won",
		"lottery",
		"prize",
		"hiring",
		"vacancy",
		"work from home",
		"investment",
		"profit",
		"crypto",
		"bitcoin",
		"gift",
		"customs",
		"apk",
		"install",
	}
}

// defaultQuitPhrases detect the counterpart abandoning the conversation.
func defaultQuitPhrases() []string {
	return []string{
		"stop messaging",
		"don't message me",
		"do not message me",
		"leave me alone",
		"wrong number",
		"i am blocking you",
		"blocking this number",
		"goodbye forever",
		"not interested",
	}
}
