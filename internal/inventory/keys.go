package inventory

import (
	"fmt"

	"github.com/ariefcatur/storefront-pos/internal/redisx"
)

func dedupKey(service, id string) string { return fmt.Sprintf(redisx.KeyDedup, service, id) }
