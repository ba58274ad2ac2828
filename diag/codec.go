package diag

import (
	"encoding/json"
	"mime"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"
)

// codec 响应体编码
type codec interface {
	ContentType() string
	Marshal(value any) ([]byte, error)
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return contentTypeJSON + "; charset=utf-8" }

func (jsonCodec) Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

// msgpackCodec 体积更小，适合脚本批量拉取样本
type msgpackCodec struct{}

func (msgpackCodec) ContentType() string { return contentTypeMsgpack }

func (msgpackCodec) Marshal(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

// negotiate 按 Accept 头选择编码，未声明 msgpack 时一律 JSON
func negotiate(accept string) codec {
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mt == contentTypeMsgpack || mt == "application/x-msgpack" {
			return msgpackCodec{}
		}
	}
	return jsonCodec{}
}
