package harness

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/carta/internal/state"
)

// actionDecoders lists the actions a scenario may dispatch. Replication
// bookkeeping (replace_state, mark_synced, sync_failed, set_online) is
// driven by the replica service and cannot be dispatched directly.
var actionDecoders = map[state.Kind]func(*yaml.Node) (state.Action, error){
	state.KindLogin:               decodeAs[state.Login],
	state.KindLogout:              decodeAs[state.Logout],
	state.KindUpdatePrices:        decodeAs[state.UpdatePrices],
	state.KindAddZone:             decodeAs[state.AddZone],
	state.KindUpdateZone:          decodeAs[state.UpdateZone],
	state.KindDeleteZone:          decodeAs[state.DeleteZone],
	state.KindAddNovel:            decodeAs[state.AddNovel],
	state.KindUpdateNovel:         decodeAs[state.UpdateNovel],
	state.KindDeleteNovel:         decodeAs[state.DeleteNovel],
	state.KindAddNotification:     decodeAs[state.AddNotification],
	state.KindClearNotifications:  decodeAs[state.ClearNotifications],
	state.KindSetLastBackup:       decodeAs[state.SetLastBackup],
	state.KindAddItem:             decodeAs[state.AddItem],
	state.KindRemoveItem:          decodeAs[state.RemoveItem],
	state.KindUpdateSeasons:       decodeAs[state.UpdateSeasons],
	state.KindUpdatePaymentMethod: decodeAs[state.UpdatePaymentMethod],
	state.KindClearCart:           decodeAs[state.ClearCart],
	state.KindLoadCart:            decodeAs[state.LoadCart],
}

// decodeAction builds the action named by kind from its YAML args.
// Field names are the lowercased struct field names, e.g. "name" and
// "cost" for add_zone.
func decodeAction(kind string, args *yaml.Node) (state.Action, error) {
	decode, ok := actionDecoders[state.Kind(kind)]
	if !ok {
		return nil, fmt.Errorf("action %q cannot be dispatched", kind)
	}
	a, err := decode(args)
	if err != nil {
		return nil, fmt.Errorf("decode %s args: %w", kind, err)
	}
	return a, nil
}

func decodeAs[T state.Action](n *yaml.Node) (state.Action, error) {
	var a T
	if n == nil || n.Kind == 0 {
		return a, nil
	}
	if err := n.Decode(&a); err != nil {
		return nil, err
	}
	return a, nil
}
