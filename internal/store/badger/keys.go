package badger

import (
	"encoding/binary"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// Key layout. Variable-length parts carry a two-byte length prefix so no
// component can bleed into the next one.
//
//	cfg                                   protocol config
//	a/<sym>                               asset config
//	e/<sym><id>                           epoch
//	b/<sym><id><user>                     bet
//	u/<user><sym><id>                     user bet index (empty value)
//	bal/<kind><owner><currency>           balance (uint64 big-endian)
//	ev/<seq>                              event outbox
//	seq/ev                                last event seq
var (
	keyConfig      = []byte("cfg")
	prefixAsset    = []byte("a/")
	prefixEpoch    = []byte("e/")
	prefixBet      = []byte("b/")
	prefixUserBet  = []byte("u/")
	prefixBalance  = []byte("bal/")
	prefixEvent    = []byte("ev/")
	keyEventSeqCtr = []byte("seq/ev")
)

func appendPart(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func compose(prefix []byte, parts ...string) []byte {
	k := make([]byte, 0, len(prefix)+32)
	k = append(k, prefix...)
	for _, p := range parts {
		k = appendPart(k, p)
	}
	return k
}

func assetKey(symbol string) []byte {
	return compose(prefixAsset, symbol)
}

func epochPrefix(asset string) []byte {
	return compose(prefixEpoch, asset)
}

func epochKey(asset string, id uint64) []byte {
	return binary.BigEndian.AppendUint64(epochPrefix(asset), id)
}

func epochBetPrefix(asset string, id uint64) []byte {
	return binary.BigEndian.AppendUint64(compose(prefixBet, asset), id)
}

func betKey(user, asset string, id uint64) []byte {
	return appendPart(epochBetPrefix(asset, id), user)
}

func userBetPrefix(user string) []byte {
	return compose(prefixUserBet, user)
}

func userBetKey(user, asset string, id uint64) []byte {
	return binary.BigEndian.AppendUint64(appendPart(userBetPrefix(user), asset), id)
}

func balanceOwnerPrefix(kind domain.AccountKind, owner string) []byte {
	return compose(prefixBalance, string(kind), owner)
}

func balanceKey(acct domain.Account) []byte {
	return appendPart(balanceOwnerPrefix(acct.Kind, acct.Owner), acct.Currency)
}

func eventKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixEvent...), seq)
}

// parseBalanceCurrency extracts the currency part of a balance key that is
// known to start with prefix.
func parseBalanceCurrency(key, prefix []byte) string {
	rest := key[len(prefix):]
	if len(rest) < 2 {
		return ""
	}
	n := int(binary.BigEndian.Uint16(rest))
	if len(rest) < 2+n {
		return ""
	}
	return string(rest[2 : 2+n])
}

// parseUserBetKey returns the (asset, epoch id) encoded after prefix.
func parseUserBetKey(key, prefix []byte) (string, uint64, bool) {
	rest := key[len(prefix):]
	if len(rest) < 2 {
		return "", 0, false
	}
	n := int(binary.BigEndian.Uint16(rest))
	if len(rest) != 2+n+8 {
		return "", 0, false
	}
	return string(rest[2 : 2+n]), binary.BigEndian.Uint64(rest[2+n:]), true
}
