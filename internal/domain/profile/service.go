package profile

import "context"

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Profile, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, p *Profile) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.Put(ctx, p)
}
