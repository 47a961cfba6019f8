package tasks

import (
	"context"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/messaging"
)

// Handlers maps each tasks command to its request/reply handler.
func (s *Service) Handlers() map[string]messaging.HandlerFunc {
	return map[string]messaging.HandlerFunc{
		contracts.CmdCreateTask: messaging.Typed(func(ctx context.Context, cmd contracts.CreateTaskCommand) (any, error) {
			return s.Create(ctx, cmd)
		}),
		contracts.CmdUpdateTask: messaging.Typed(func(ctx context.Context, cmd contracts.UpdateTaskCommand) (any, error) {
			return s.Update(ctx, cmd)
		}),
		contracts.CmdDeleteTask: messaging.Typed(func(ctx context.Context, cmd contracts.DeleteTaskCommand) (any, error) {
			if err := s.Delete(ctx, cmd.ID); err != nil {
				return nil, err
			}
			return contracts.DeleteTaskResult{Deleted: true}, nil
		}),
		contracts.CmdGetTask: messaging.Typed(func(ctx context.Context, q contracts.GetTaskQuery) (any, error) {
			return s.GetTaskDetails(ctx, q.ID, q.AuditLimit)
		}),
		contracts.CmdGetTasks: messaging.Typed(func(ctx context.Context, q contracts.ListTasksQuery) (any, error) {
			return s.ListTasks(ctx, q.Page, q.Size)
		}),
		contracts.CmdCreateComment: messaging.Typed(func(ctx context.Context, cmd contracts.CreateCommentCommand) (any, error) {
			return s.AddComment(ctx, cmd)
		}),
		contracts.CmdGetComments: messaging.Typed(func(ctx context.Context, q contracts.ListCommentsQuery) (any, error) {
			return s.ListComments(ctx, q.TaskID, q.Page, q.Size)
		}),
	}
}

// Register subscribes every tasks command on server.
func (s *Service) Register(server *messaging.RPCServer) error {
	for command, h := range s.Handlers() {
		if err := server.Handle(command, h); err != nil {
			return err
		}
	}
	return nil
}
