package ports

import (
	"context"
	"reflect"
	"testing"

	"torrentcache/internal/domain"
)

func TestEngineInterface(t *testing.T) {
	typ := reflect.TypeOf((*Engine)(nil)).Elem()
	torrentType := reflect.TypeOf((*Torrent)(nil)).Elem()

	assertMethod(t, typ, "Get", []reflect.Type{
		reflect.TypeOf(domain.Fingerprint("")),
	}, []reflect.Type{torrentType, reflect.TypeOf(false)})

	assertMethod(t, typ, "Add", []reflect.Type{
		contextType(),
		reflect.TypeOf(domain.Source{}),
		reflect.TypeOf(AddOptions{}),
	}, []reflect.Type{torrentType, errorType()})

	assertMethod(t, typ, "ListActive", nil, []reflect.Type{reflect.SliceOf(torrentType)})
	assertMethod(t, typ, "BaseURL", nil, []reflect.Type{reflect.TypeOf("")})
	assertMethod(t, typ, "Close", nil, []reflect.Type{errorType()})
}

func TestTorrentInterface(t *testing.T) {
	typ := reflect.TypeOf((*Torrent)(nil)).Elem()
	fileType := reflect.TypeOf((*TorrentFile)(nil)).Elem()

	assertMethod(t, typ, "Fingerprint", nil, []reflect.Type{reflect.TypeOf(domain.Fingerprint(""))})
	assertMethod(t, typ, "Length", nil, []reflect.Type{reflect.TypeOf(int64(0))})
	assertMethod(t, typ, "DownloadedBytes", nil, []reflect.Type{reflect.TypeOf(int64(0))})
	assertMethod(t, typ, "Ratio", nil, []reflect.Type{reflect.TypeOf(float64(0))})
	assertMethod(t, typ, "Files", nil, []reflect.Type{reflect.SliceOf(fileType)})
	assertMethod(t, typ, "Ready", nil, []reflect.Type{reflect.TypeOf((<-chan struct{})(nil))})
	assertMethod(t, typ, "Failed", nil, []reflect.Type{reflect.TypeOf((<-chan error)(nil))})
	assertMethod(t, typ, "Destroy", []reflect.Type{reflect.TypeOf(false)}, []reflect.Type{errorType()})
}

func TestTorrentFileInterface(t *testing.T) {
	typ := reflect.TypeOf((*TorrentFile)(nil)).Elem()

	assertMethod(t, typ, "Index", nil, []reflect.Type{reflect.TypeOf(0)})
	assertMethod(t, typ, "Name", nil, []reflect.Type{reflect.TypeOf("")})
	assertMethod(t, typ, "StreamPath", nil, []reflect.Type{reflect.TypeOf("")})
	assertMethod(t, typ, "Select", nil, nil)
	assertMethod(t, typ, "Deselect", nil, nil)
}

func TestIndexerInterface(t *testing.T) {
	typ := reflect.TypeOf((*Indexer)(nil)).Elem()

	assertMethod(t, typ, "Search", []reflect.Type{
		contextType(),
		reflect.TypeOf(domain.IndexerQuery{}),
	}, []reflect.Type{reflect.TypeOf([]domain.Candidate(nil)), errorType()})
}

func assertMethod(t *testing.T, typ reflect.Type, name string, in []reflect.Type, out []reflect.Type) {
	t.Helper()
	method, ok := typ.MethodByName(name)
	if !ok {
		t.Fatalf("missing method %s", name)
	}

	if method.Type.NumIn() != len(in) {
		t.Fatalf("%s NumIn = %d, want %d", name, method.Type.NumIn(), len(in))
	}
	for i, typIn := range in {
		if got := method.Type.In(i); got != typIn {
			t.Fatalf("%s In[%d] = %s, want %s", name, i, got, typIn)
		}
	}

	if method.Type.NumOut() != len(out) {
		t.Fatalf("%s NumOut = %d, want %d", name, method.Type.NumOut(), len(out))
	}
	for i, typOut := range out {
		if got := method.Type.Out(i); got != typOut {
			t.Fatalf("%s Out[%d] = %s, want %s", name, i, got, typOut)
		}
	}
}

func contextType() reflect.Type {
	return reflect.TypeOf((*context.Context)(nil)).Elem()
}

func errorType() reflect.Type {
	return reflect.TypeOf((*error)(nil)).Elem()
}
