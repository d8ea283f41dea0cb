package recognition

import (
	"sync/atomic"

	"github.com/Kagami/go-face"
)

type MockFaceEngine struct {
	RecognizeFunc func(data []byte) ([]face.Face, error)
	CloseFunc     func()

	recognizeCalls atomic.Int32
	closeCalls     atomic.Int32
}

func (m *MockFaceEngine) Recognize(data []byte) ([]face.Face, error) {
	m.recognizeCalls.Add(1)
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) Close() {
	m.closeCalls.Add(1)
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

func mockFactory(engine FaceEngine, err error) EngineFactory {
	return func(path string) (FaceEngine, error) {
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}
