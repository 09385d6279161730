package repositories

import (
	"context"
	"database/sql"
	"errors"

	"danceBack/internal/models"
)

type CatalogRepository struct {
	DB *sql.DB
}

func (r *CatalogRepository) ListCourses(ctx context.Context, limit, offset int) ([]models.Course, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, slug, title, description, instructor_id, level, price, published, created_at
FROM courses WHERE published = 1 ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := []models.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (r *CatalogRepository) GetCourse(ctx context.Context, id int64) (models.Course, error) {
	row := r.DB.QueryRowContext(ctx, `
SELECT id, slug, title, description, instructor_id, level, price, published, created_at
FROM courses WHERE id = ?`, id)
	return scanCourse(row)
}

// GetCourseOutline returns the course with its modules and lessons in order.
func (r *CatalogRepository) GetCourseOutline(ctx context.Context, id int64) (models.Course, error) {
	course, err := r.GetCourse(ctx, id)
	if err != nil {
		return models.Course{}, err
	}

	rows, err := r.DB.QueryContext(ctx, `
SELECT m.id, m.title, m.position, l.id, l.title, l.video_url, l.duration_seconds, l.position
FROM course_modules m
LEFT JOIN lessons l ON l.module_id = m.id
WHERE m.course_id = ?
ORDER BY m.position, l.position`, id)
	if err != nil {
		return models.Course{}, err
	}
	defer rows.Close()

	index := map[int64]int{}
	for rows.Next() {
		var (
			m        models.Module
			lessonID sql.NullInt64
			title    sql.NullString
			video    sql.NullString
			duration sql.NullInt64
			position sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Position, &lessonID, &title, &video, &duration, &position); err != nil {
			return models.Course{}, err
		}
		i, ok := index[m.ID]
		if !ok {
			m.CourseID = id
			course.Modules = append(course.Modules, m)
			i = len(course.Modules) - 1
			index[m.ID] = i
		}
		if lessonID.Valid {
			course.Modules[i].Lessons = append(course.Modules[i].Lessons, models.Lesson{
				ID:              lessonID.Int64,
				ModuleID:        m.ID,
				Title:           title.String,
				VideoURL:        video.String,
				DurationSeconds: int(duration.Int64),
				Position:        int(position.Int64),
			})
		}
	}
	return course, rows.Err()
}

func (r *CatalogRepository) ListResources(ctx context.Context, category string, limit, offset int) ([]models.Resource, error) {
	query := `SELECT id, title, description, category, price, file_key, published, created_at FROM resources WHERE published = 1`
	args := []any{}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := []models.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

func (r *CatalogRepository) GetResource(ctx context.Context, id int64) (models.Resource, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, title, description, category, price, file_key, published, created_at FROM resources WHERE id = ?`, id)
	return scanResource(row)
}

func scanCourse(scanner interface{ Scan(dest ...any) error }) (models.Course, error) {
	var (
		c    models.Course
		desc sql.NullString
	)
	err := scanner.Scan(&c.ID, &c.Slug, &c.Title, &desc, &c.InstructorID, &c.Level, &c.Price, &c.Published, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Course{}, models.ErrCourseNotFound
	}
	c.Description = desc.String
	return c, err
}

func scanResource(scanner interface{ Scan(dest ...any) error }) (models.Resource, error) {
	var (
		res  models.Resource
		desc sql.NullString
		key  sql.NullString
	)
	err := scanner.Scan(&res.ID, &res.Title, &desc, &res.Category, &res.Price, &key, &res.Published, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Resource{}, models.ErrResourceNotFound
	}
	res.Description = desc.String
	res.FileKey = key.String
	return res, err
}
