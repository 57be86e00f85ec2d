// Package mood reads the guest's mood from a message so personas can adjust
// the tone of their reply.
package mood

import "strings"

// Mood is the guest's apparent state of mind.
type Mood string

const (
	Neutral  Mood = "neutral"
	Happy    Mood = "happy"
	Sad      Mood = "sad"
	Angry    Mood = "angry"
	Excited  Mood = "excited"
	Anxious  Mood = "anxious"
	Grateful Mood = "grateful"
)

// Tone is how the persona should answer.
type Tone string

const (
	ToneNatural  Tone = "natural"
	ToneWarm     Tone = "warm"
	ToneComfort  Tone = "comforting"
	ToneSteady   Tone = "calm and steady"
	ToneSpirited Tone = "spirited"
)

// Reading is the outcome of Read.
type Reading struct {
	Mood  Mood
	Tone  Tone
	Score int
}

// Detected reports whether any mood signal was found.
func (r Reading) Detected() bool {
	return r.Score > 0
}

type bucket struct {
	mood     Mood
	keywords []string
}

// buckets are scanned in order; earlier buckets win ties.
var buckets = []bucket{
	{Sad, []string{"sad", "unhappy", "cry", "crying", "depressed", "lonely", "heartbroken", "miss you", "hurt", "upset", "lost", "难过", "伤心", "失落", "孤单"}},
	{Angry, []string{"angry", "furious", "mad at", "annoyed", "hate", "fed up", "pissed", "生气", "愤怒", "烦死"}},
	{Anxious, []string{"worried", "nervous", "scared", "afraid", "anxious", "panic", "stressed", "exam", "担心", "害怕", "紧张"}},
	{Grateful, []string{"thank you", "thanks", "grateful", "appreciate", "谢谢", "感谢"}},
	{Excited, []string{"can't wait", "wow", "amazing", "incredible", "awesome", "hype", "激动", "期待", "哇"}},
	{Happy, []string{"happy", "glad", "great", "love", "haha", "lol", "yay", "开心", "高兴", "喜欢"}},
}

var tones = map[Mood]Tone{
	Neutral:  ToneNatural,
	Happy:    ToneWarm,
	Grateful: ToneWarm,
	Sad:      ToneComfort,
	Anxious:  ToneComfort,
	Angry:    ToneSteady,
	Excited:  ToneSpirited,
}

// Read scores text against the keyword buckets. Exclamation marks push
// towards excitement.
func Read(text string) Reading {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Reading{Mood: Neutral, Tone: ToneNatural}
	}

	scores := make(map[Mood]int, len(buckets))
	for _, b := range buckets {
		for _, word := range b.keywords {
			if strings.Contains(normalized, word) {
				scores[b.mood] += 3
			}
		}
	}
	if n := strings.Count(text, "!"); n > 0 {
		scores[Excited] += 2 * n
	}

	best, bestScore := Neutral, 0
	for _, b := range buckets {
		if s := scores[b.mood]; s > bestScore {
			best, bestScore = b.mood, s
		}
	}
	return Reading{Mood: best, Tone: tones[best], Score: bestScore}
}
