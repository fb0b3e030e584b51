package touch

// Reaction is a (mood, status) pair written into the presence record as a
// timed override. Moods must match faces the dashboard renderer knows.
type Reaction struct {
	Mood   string
	Status string
}

// reactionPool is what a plain tap can get. Picked uniformly at random.
var reactionPool = []Reaction{
	{Mood: "happy", Status: "hehe, that tickles! ✨"},
	{Mood: "excited", Status: "ooh hi!! 👋"},
	{Mood: "happy", Status: "boop received 🫧"},
	{Mood: "angry", Status: "hey! watch the hat 😤"},
	{Mood: "excited", Status: "🧪 bubble bubble!"},
	{Mood: "happy", Status: "again again! 💫"},
}

// thinkingReaction is the interim placeholder while the agent is woken for a
// double-tap. The long revert guards against the agent never answering.
var thinkingReaction = Reaction{Mood: "thinking", Status: "🤔 hmm..."}
