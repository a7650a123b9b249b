package connect

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"
)

var validate = validator.New()

type indexParams struct {
	Index int `mapstructure:"index" validate:"gte=0"`
}

type pathParams struct {
	Path string `mapstructure:"path" validate:"required"`
}

type pathsParams struct {
	Paths []string `mapstructure:"paths" validate:"required,min=1,dive,required"`
}

type seekParams struct {
	Seconds int64 `mapstructure:"seconds"`
}

type seekToParams struct {
	PositionMs int64 `mapstructure:"position_ms" validate:"gte=0"`
}

type volumeParams struct {
	Volume int `mapstructure:"volume" validate:"gte=0,lte=100"`
}

type speedParams struct {
	Speed int `mapstructure:"speed" validate:"gte=1,lte=30"`
}

type loopModeParams struct {
	Mode string `mapstructure:"mode" validate:"required,oneof=single queue playlist"`
}

// decodeParams decodes msg into out and validates it.
func decodeParams(msg *structpb.Struct, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(msg.AsMap()); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode parameters"), errInvalidParams)
	}
	if err := validate.Struct(out); err != nil {
		return errors.Mark(errors.Wrap(err, "validation failed"), errInvalidParams)
	}
	return nil
}
