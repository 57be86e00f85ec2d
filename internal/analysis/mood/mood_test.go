package mood

import "testing"

func TestRead(t *testing.T) {
	cases := []struct {
		text string
		mood Mood
		tone Tone
	}{
		{"", Neutral, ToneNatural},
		{"What is virtue?", Neutral, ToneNatural},
		{"I'm so sad today, I failed again", Sad, ToneComfort},
		{"I'm worried about my exam tomorrow", Anxious, ToneComfort},
		{"I am fed up and angry with everyone", Angry, ToneSteady},
		{"Thanks so much for the advice", Grateful, ToneWarm},
		{"We won the match!!!", Excited, ToneSpirited},
		{"今天好开心", Happy, ToneWarm},
	}
	for _, tc := range cases {
		got := Read(tc.text)
		if got.Mood != tc.mood || got.Tone != tc.tone {
			t.Fatalf("Read(%q) = %+v, expected %s/%s", tc.text, got, tc.mood, tc.tone)
		}
	}
}

func TestReadTieGoesToEarlierBucket(t *testing.T) {
	// one sad and one happy keyword
	got := Read("happy birthday but I feel lonely")
	if got.Mood != Sad || got.Score != 3 {
		t.Fatalf("expected sad with score 3, got %+v", got)
	}
	if !got.Detected() {
		t.Fatalf("expected a detected mood")
	}
}
