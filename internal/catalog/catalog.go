package catalog

import (
	"fmt"
	"sort"

	"github.com/evolark/photogenbot/internal/config"
	"github.com/evolark/photogenbot/internal/models"
)

// Catalog is the static set of generation models offered to users. It is
// built once at startup and never mutated afterwards.
type Catalog struct {
	specs map[string]models.ModelSpec
	order []string
}

// New builds the catalog, taking prices and free-use quotas from config.
func New(cfg config.Config) *Catalog {
	specs := []models.ModelSpec{
		{
			ID:          "text-to-image",
			Name:        "Текст → Изображение",
			Description: "Создает картинку по описанию",
			APIModel:    "gpt-4o-image",
			Endpoint:    "images/generations",
			Media:       models.MediaImage,
			Requires:    models.InputText,
			Size:        "1024x1024",
		},
		{
			ID:              "text-to-video",
			Name:            "Текст → Видео",
			Description:     "Создает видео по описанию",
			APIModel:        "wan2.5-text-to-video",
			Endpoint:        "videos/generations",
			Media:           models.MediaVideo,
			Requires:        models.InputText,
			Size:            "1024x576",
			DurationSeconds: 5,
		},
		{
			ID:              "image-to-video",
			Name:            "Изображение → Видео",
			Description:     "Создает видео из картинки",
			APIModel:        "wan2.5-image-to-video",
			Endpoint:        "videos/generations",
			Media:           models.MediaVideo,
			Requires:        models.InputImage,
			Size:            "1024x576",
			DurationSeconds: 5,
		},
		{
			ID:          "image-to-image",
			Name:        "Изображение → Изображение",
			Description: "Редактирует и улучшает изображение",
			APIModel:    "qwen-image-edit-plus",
			Endpoint:    "services/aigc/image2image/editing",
			Media:       models.MediaImage,
			Requires:    models.InputBoth,
			Size:        "1024x1024",
		},
	}

	c := &Catalog{specs: make(map[string]models.ModelSpec, len(specs))}
	for _, spec := range specs {
		spec.Price = cfg.Prices[spec.ID]
		spec.FreeLimit = cfg.FreeLimits[spec.ID]
		c.specs[spec.ID] = spec
		c.order = append(c.order, spec.ID)
	}
	return c
}

// Get returns the spec for a model id.
func (c *Catalog) Get(id string) (models.ModelSpec, error) {
	spec, ok := c.specs[id]
	if !ok {
		return models.ModelSpec{}, fmt.Errorf("unknown model: %s", id)
	}
	return spec, nil
}

// All returns every spec in catalog order.
func (c *Catalog) All() []models.ModelSpec {
	out := make([]models.ModelSpec, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.specs[id])
	}
	return out
}

// IDs returns the model ids sorted for stable iteration in reports.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}
