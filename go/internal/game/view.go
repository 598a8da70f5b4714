package game

// TurnView is the role-dependent part of a turn: the drawer sees the word, everyone else
// sees its length. A nil TurnView means no word is active.
type TurnView interface {
	isTurnView()
}

// DrawerView is held by the client whose identity equals the current drawer
type DrawerView struct {
	Word string
}

// GuesserView is held by every other client
type GuesserView struct {
	WordLength int
	Hint       string
}

func (DrawerView) isTurnView()  {}
func (GuesserView) isTurnView() {}

// Word returns the current word when this client is drawing
func (s State) Word() (string, bool) {
	v, ok := s.Turn.(DrawerView)
	if !ok {
		return "", false
	}
	return v.Word, true
}

// WordLength returns the length of the hidden word when this client is guessing
func (s State) WordLength() (int, bool) {
	v, ok := s.Turn.(GuesserView)
	if !ok {
		return 0, false
	}
	return v.WordLength, true
}

// Hint returns the last guess helper hint, if any
func (s State) Hint() string {
	if v, ok := s.Turn.(GuesserView); ok {
		return v.Hint
	}
	return ""
}

// viewFor picks the variant by comparing identities
func viewFor(localID, drawerID, word string, wordLength int) TurnView {
	if localID != "" && localID == drawerID {
		return DrawerView{Word: word}
	}
	return GuesserView{WordLength: wordLength}
}
