package service

import (
	"context"
	"strings"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/repository/mysql"

	"gorm.io/gorm"
)

const maxCommentLen = 1000

type CommentService struct {
	db  *gorm.DB
	enf *authz.Enforcer
}

func NewCommentService(db *gorm.DB, enf *authz.Enforcer) *CommentService {
	return &CommentService{db: db, enf: enf}
}

type CommentView struct {
	model.Comment
	Author *model.UserMinimal `json:"author"`
}

// targetID resolves an id or slug of the given kind. Soft-deleted debates are missing.
func targetID(ctx context.Context, db *gorm.DB, kind model.ContentKind, key string) (uint64, error) {
	switch kind {
	case model.KindPoll:
		p, err := (&mysql.PollRepository{DB: db}).FindByIDOrSlug(ctx, key)
		if err != nil {
			return 0, notFound(err, "poll")
		}
		return p.ID, nil
	case model.KindDebate:
		d, err := (&mysql.DebateRepository{DB: db}).FindByIDOrSlug(ctx, key)
		if err != nil {
			return 0, notFound(err, "debate")
		}
		return d.ID, nil
	case model.KindIssue:
		is, err := (&mysql.IssueRepository{DB: db}).FindByIDOrSlug(ctx, key)
		if err != nil {
			return 0, notFound(err, "issue")
		}
		return is.ID, nil
	case model.KindProject:
		p, err := (&mysql.ProjectRepository{DB: db}).FindByIDOrSlug(ctx, key)
		if err != nil {
			return 0, notFound(err, "project")
		}
		return p.ID, nil
	}
	return 0, pkg.Validation("invalid content kind %q", kind)
}

// Add posts a comment. Poll comments are open to any signed-in user; the
// other kinds need membership of a linked community.
func (s *CommentService) Add(ctx context.Context, kind model.ContentKind, key string, actor *model.User, content string) (*CommentView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxCommentLen {
		return nil, pkg.Validation("content must be 1-%d characters", maxCommentLen)
	}
	id, err := targetID(ctx, s.db, kind, key)
	if err != nil {
		return nil, err
	}
	if kind != model.KindPoll {
		if err := requireLinkedMember(ctx, s.db, kind, id, actor); err != nil {
			return nil, err
		}
	}
	c := &model.Comment{ContentKind: kind, ContentID: id, UserID: actor.ID, Content: content}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := (&mysql.CommentRepository{DB: tx}).Create(ctx, c); err != nil {
			return err
		}
		return mysql.InsertOutbox(tx, "comment.created", string(kind), id, actor.ID, map[string]any{"comment_id": c.ID})
	})
	if err != nil {
		return nil, err
	}
	return &CommentView{Comment: *c, Author: actor.Minimal()}, nil
}

func (s *CommentService) List(ctx context.Context, kind model.ContentKind, key string, page pkg.Page) (pkg.Paginated[CommentView], error) {
	id, err := targetID(ctx, s.db, kind, key)
	if err != nil {
		return pkg.Paginated[CommentView]{}, err
	}
	list, total, err := (&mysql.CommentRepository{DB: s.db}).List(ctx, kind, id, page.Offset(), page.Size)
	if err != nil {
		return pkg.Paginated[CommentView]{}, err
	}
	ids := make([]uint64, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.UserID)
	}
	users, err := (&mysql.UserRepository{DB: s.db}).FindByIDs(ctx, dedupe(ids))
	if err != nil {
		return pkg.Paginated[CommentView]{}, err
	}
	out := make([]CommentView, 0, len(list))
	for _, c := range list {
		v := CommentView{Comment: c}
		if u, ok := users[c.UserID]; ok {
			v.Author = u.Minimal()
		}
		out = append(out, v)
	}
	return pkg.NewPaginated(out, total, page), nil
}

// Delete is allowed for the author and for roles that manage content.
func (s *CommentService) Delete(ctx context.Context, id uint64, actor *model.User) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	repo := &mysql.CommentRepository{DB: s.db}
	c, err := repo.FindByID(ctx, id)
	if err != nil {
		return notFound(err, "comment")
	}
	if !canManage(s.enf, actor, c.UserID) {
		return pkg.Forbidden("only the author can delete this comment")
	}
	return repo.Delete(ctx, c.ID)
}
