// Package labelmap - Loading of object detection label maps and the category index built from them.
//
// A label map is a protobuf text-format file of the form:
//
//	item {
//	  id: 1
//	  name: 'logo_a'
//	  display_name: 'Logo A'
//	}
package labelmap

import (
	"os"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ErrMalformed is returned (wrapped) when a label map cannot be parsed or fails validation.
var ErrMalformed = errors.New("malformed label map")

// Item is a single entry of a label map.
type Item struct {
	ID          int
	Name        string
	DisplayName string
}

// LabelMap is the parsed content of a label map file, in file order.
type LabelMap struct {
	Items []Item
}

// schema is the message descriptor for StringIntLabelMap. Only the fields we read are declared;
// everything else in the file is discarded while parsing.
var schema = mustSchema()

func mustSchema() protoreflect.MessageDescriptor {
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
	i32 := descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum()
	msg := descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("string_int_label_map.proto"),
		Package: proto.String("object_detection.protos"),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("StringIntLabelMapItem"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("name"), JsonName: proto.String("name"), Number: proto.Int32(1), Label: optional, Type: str},
					{Name: proto.String("id"), JsonName: proto.String("id"), Number: proto.Int32(2), Label: optional, Type: i32},
					{Name: proto.String("display_name"), JsonName: proto.String("displayName"), Number: proto.Int32(3), Label: optional, Type: str},
				},
			},
			{
				Name: proto.String("StringIntLabelMap"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     proto.String("item"),
						JsonName: proto.String("item"),
						Number:   proto.Int32(1),
						Label:    repeated,
						Type:     msg,
						TypeName: proto.String(".object_detection.protos.StringIntLabelMapItem"),
					},
				},
			},
		},
	}

	fd, err := protodesc.NewFile(file, nil)
	if err != nil {
		panic(err)
	}
	return fd.Messages().ByName("StringIntLabelMap")
}

// Load reads and parses a label map file.
//
// Arguments:
//   - path: The path to the .pbtxt label map.
//
// Returns:
//   - *LabelMap: The parsed label map.
//   - error: An error if the file is missing or malformed.
func Load(path string) (*LabelMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read label map %s", path)
	}

	lm, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "label map %s", path)
	}

	return lm, nil
}

// Parse decodes a protobuf text-format label map and validates its ids.
//
// Arguments:
//   - data: The raw text-format content.
//
// Returns:
//   - *LabelMap: The parsed label map.
//   - error: An error wrapping ErrMalformed if the text or an id is invalid.
func Parse(data []byte) (*LabelMap, error) {
	msg := dynamicpb.NewMessage(schema)
	opts := prototext.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(data, msg); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%v", err)
	}

	itemField := schema.Fields().ByName("item")
	itemSchema := itemField.Message()
	nameField := itemSchema.Fields().ByName("name")
	idField := itemSchema.Fields().ByName("id")
	displayField := itemSchema.Fields().ByName("display_name")

	list := msg.Get(itemField).List()
	lm := &LabelMap{Items: make([]Item, 0, list.Len())}
	for i := 0; i < list.Len(); i++ {
		entry := list.Get(i).Message()
		lm.Items = append(lm.Items, Item{
			ID:          int(entry.Get(idField).Int()),
			Name:        entry.Get(nameField).String(),
			DisplayName: entry.Get(displayField).String(),
		})
	}

	if err := lm.validate(); err != nil {
		return nil, err
	}

	return lm, nil
}

// validate rejects negative ids and id 0 for anything but the background class.
func (lm *LabelMap) validate() error {
	for _, item := range lm.Items {
		if item.ID < 0 {
			return errors.Wrapf(ErrMalformed, "item %q has negative id %d", item.Name, item.ID)
		}
		if item.ID == 0 && item.Name != "background" && item.DisplayName != "background" {
			return errors.Wrapf(ErrMalformed, "id 0 is reserved for the background class, got %q", item.Name)
		}
	}
	return nil
}
