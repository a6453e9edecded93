package arena

import "context"

// Store persiste as configurações diárias da arena, chave = Date
type Store interface {
	Get(ctx context.Context, date string) (Config, error)
	List(ctx context.Context) ([]Config, error) // data mais recente primeiro
	Upsert(ctx context.Context, c Config) (Config, error)
	Delete(ctx context.Context, date string) error
}
