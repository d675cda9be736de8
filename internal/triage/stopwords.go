package triage

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var dutchStopWords = wordSet(
	"de", "het", "een", "en", "van", "ik", "je", "jij", "u", "is", "dat", "die",
	"in", "op", "te", "met", "voor", "niet", "maar", "om", "aan", "er", "ook",
	"als", "bij", "nog", "wel", "naar", "kan", "mijn", "uw", "wij", "we", "zijn",
	"was", "heb", "hebt", "heeft", "hebben", "wordt", "worden", "dit", "deze",
	"dan", "wat", "wie", "waar", "wanneer", "waarom", "hoe", "geen", "meer",
	"moet", "moeten", "kunnen", "zou", "zal", "al", "of", "tot", "uit", "over",
	"door", "onze", "ons", "hun", "hij", "zij", "ze", "mij", "mijzelf", "jullie",
	"graag", "alstublieft", "aub", "bedankt", "dank", "hallo", "hoi", "goedemorgen",
	"goedemiddag", "groet", "groeten", "vriendelijke", "nu", "even", "toch",
)

var englishStopWords = wordSet(
	"the", "a", "an", "and", "or", "but", "of", "to", "in", "on", "at", "for",
	"with", "from", "by", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "i", "me", "my", "we", "our",
	"you", "your", "he", "she", "it", "its", "they", "them", "their", "this",
	"that", "these", "those", "what", "which", "who", "when", "where", "why",
	"how", "not", "no", "can", "could", "would", "should", "will", "just",
	"please", "thanks", "thank", "hello", "hi", "hey", "there", "here", "about",
	"some", "any", "all", "also", "very", "still", "again", "get", "got",
)

// stopWords is the union used by keyword extraction.
var stopWords = func() map[string]struct{} {
	m := make(map[string]struct{}, len(dutchStopWords)+len(englishStopWords))
	for w := range dutchStopWords {
		m[w] = struct{}{}
	}
	for w := range englishStopWords {
		m[w] = struct{}{}
	}
	return m
}()
