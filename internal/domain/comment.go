package domain

import "time"

// Comment is a note attached to a task.
type Comment struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}
