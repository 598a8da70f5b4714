package game

func (s *State) appendChat(msg ChatMessage) {
	s.Chat = append(s.Chat, msg)
	if over := len(s.Chat) - ChatLimit; over > 0 {
		// copy so the dropped lines do not stay reachable through the backing array
		s.Chat = append([]ChatMessage(nil), s.Chat[over:]...)
	}
}

func (s *State) appendSystemChat(text string) {
	s.appendChat(ChatMessage{SenderName: systemSender, Message: text, IsSystem: true})
}
