package mysql

import (
	"context"
	"strconv"

	"geounity/internal/model"

	"gorm.io/gorm"
)

type ProjectRepository struct {
	DB *gorm.DB
}

// StepInput carries a step with its resources for creation.
type StepInput struct {
	Step      model.ProjectStep
	Resources []model.ProjectResource
}

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project, steps []StepInput) error {
	db := r.DB.WithContext(ctx)
	if err := db.Create(p).Error; err != nil {
		return err
	}
	for i := range steps {
		step := steps[i].Step
		step.ProjectID = p.ID
		if err := db.Create(&step).Error; err != nil {
			return err
		}
		if len(steps[i].Resources) == 0 {
			continue
		}
		res := steps[i].Resources
		for j := range res {
			res[j].StepID = step.ID
		}
		if err := db.Create(&res).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *ProjectRepository) FindByIDOrSlug(ctx context.Context, key string) (*model.Project, error) {
	var p model.Project
	db := r.DB.WithContext(ctx)
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		db = db.Where("id = ?", id)
	} else {
		db = db.Where("slug = ?", key)
	}
	err := db.First(&p).Error
	return &p, err
}

func (r *ProjectRepository) FindByID(ctx context.Context, id uint64) (*model.Project, error) {
	var p model.Project
	err := r.DB.WithContext(ctx).First(&p, id).Error
	return &p, err
}

func (r *ProjectRepository) List(ctx context.Context, f ContentFilter, offset, limit int) ([]model.Project, int64, error) {
	q := applyContentFilter(r.DB.WithContext(ctx).Model(&model.Project{}), model.KindProject, "scope", f)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Project
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *ProjectRepository) Updates(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.Project{}).Where("id = ?", id).Updates(fields).Error
}

func (r *ProjectRepository) Steps(ctx context.Context, projectID uint64) ([]model.ProjectStep, error) {
	var steps []model.ProjectStep
	err := r.DB.WithContext(ctx).Where("project_id = ?", projectID).Order("step_order ASC, id ASC").Find(&steps).Error
	return steps, err
}

func (r *ProjectRepository) Resources(ctx context.Context, stepIDs []uint64) (map[uint64][]model.ProjectResource, error) {
	out := make(map[uint64][]model.ProjectResource, len(stepIDs))
	if len(stepIDs) == 0 {
		return out, nil
	}
	var list []model.ProjectResource
	if err := r.DB.WithContext(ctx).Where("step_id IN ?", stepIDs).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	for _, res := range list {
		out[res.StepID] = append(out[res.StepID], res)
	}
	return out, nil
}

func (r *ProjectRepository) AddCommitment(ctx context.Context, c *model.ProjectCommitment) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *ProjectRepository) CountCommitments(ctx context.Context, projectID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.ProjectCommitment{}).Where("project_id = ?", projectID).Count(&n).Error
	return n, err
}

// AddDonation records the donation and adds it to current_amount in one UPDATE.
func (r *ProjectRepository) AddDonation(ctx context.Context, d *model.ProjectDonation) error {
	db := r.DB.WithContext(ctx)
	if err := db.Create(d).Error; err != nil {
		return err
	}
	return db.Model(&model.Project{}).Where("id = ?", d.ProjectID).
		UpdateColumn("current_amount", gorm.Expr("current_amount + ?", d.Amount)).Error
}

func (r *ProjectRepository) DonationStats(ctx context.Context, projectID uint64) (count int64, err error) {
	err = r.DB.WithContext(ctx).Model(&model.ProjectDonation{}).Where("project_id = ?", projectID).Count(&count).Error
	return
}

func (r *ProjectRepository) Delete(ctx context.Context, id uint64) error {
	db := r.DB.WithContext(ctx)
	if err := db.Where("step_id IN (?)", db.Model(&model.ProjectStep{}).Select("id").Where("project_id = ?", id)).
		Delete(&model.ProjectResource{}).Error; err != nil {
		return err
	}
	for _, m := range []any{&model.ProjectStep{}, &model.ProjectCommitment{}, &model.ProjectDonation{}} {
		if err := db.Where("project_id = ?", id).Delete(m).Error; err != nil {
			return err
		}
	}
	if err := (&ContentRepository{DB: r.DB}).DeleteLinks(ctx, model.KindProject, id); err != nil {
		return err
	}
	return db.Delete(&model.Project{}, id).Error
}
