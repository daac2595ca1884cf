package dto

// CreateRoomRequest: payload for opening (or re-opening) a conversation about a book
type CreateRoomRequest struct {
	OtherUserID string `json:"other_user_id" binding:"required,uuid"`
	BookTitle   string `json:"book_title" binding:"required,max=255"`
}

// SendMessageRequest: payload for posting a message; the body is trimmed server side
type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// MessageResponse: generic acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
