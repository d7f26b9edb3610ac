package dicomio

import "github.com/suyashkumar/dicom/pkg/tag"

// Attributes of the Segmentation IOD and its functional groups.
var (
	tagMediaStorageSOPClassUID    = tag.Tag{Group: 0x0002, Element: 0x0002}
	tagMediaStorageSOPInstanceUID = tag.Tag{Group: 0x0002, Element: 0x0003}
	tagTransferSyntaxUID          = tag.Tag{Group: 0x0002, Element: 0x0010}

	tagSOPClassUID              = tag.Tag{Group: 0x0008, Element: 0x0016}
	tagSOPInstanceUID           = tag.Tag{Group: 0x0008, Element: 0x0018}
	tagModality                 = tag.Tag{Group: 0x0008, Element: 0x0060}
	tagSeriesDescription        = tag.Tag{Group: 0x0008, Element: 0x103E}
	tagReferencedSeriesSequence = tag.Tag{Group: 0x0008, Element: 0x1115}
	tagReferencedSOPClassUID    = tag.Tag{Group: 0x0008, Element: 0x1150}
	tagReferencedSOPInstanceUID = tag.Tag{Group: 0x0008, Element: 0x1155}
	tagReferencedFrameNumber    = tag.Tag{Group: 0x0008, Element: 0x1160}
	tagSourceImageSequence      = tag.Tag{Group: 0x0008, Element: 0x2112}
	tagDerivationImageSequence  = tag.Tag{Group: 0x0008, Element: 0x9124}

	tagSliceThickness = tag.Tag{Group: 0x0018, Element: 0x0050}

	tagStudyInstanceUID         = tag.Tag{Group: 0x0020, Element: 0x000D}
	tagSeriesInstanceUID        = tag.Tag{Group: 0x0020, Element: 0x000E}
	tagSeriesNumber             = tag.Tag{Group: 0x0020, Element: 0x0011}
	tagImagePositionPatient     = tag.Tag{Group: 0x0020, Element: 0x0032}
	tagImageOrientationPatient  = tag.Tag{Group: 0x0020, Element: 0x0037}
	tagFrameOfReferenceUID      = tag.Tag{Group: 0x0020, Element: 0x0052}
	tagPlanePositionSequence    = tag.Tag{Group: 0x0020, Element: 0x9113}
	tagPlaneOrientationSequence = tag.Tag{Group: 0x0020, Element: 0x9116}

	tagSamplesPerPixel           = tag.Tag{Group: 0x0028, Element: 0x0002}
	tagPhotometricInterpretation = tag.Tag{Group: 0x0028, Element: 0x0004}
	tagNumberOfFrames            = tag.Tag{Group: 0x0028, Element: 0x0008}
	tagRows                      = tag.Tag{Group: 0x0028, Element: 0x0010}
	tagColumns                   = tag.Tag{Group: 0x0028, Element: 0x0011}
	tagPixelSpacing              = tag.Tag{Group: 0x0028, Element: 0x0030}
	tagBitsAllocated             = tag.Tag{Group: 0x0028, Element: 0x0100}
	tagBitsStored                = tag.Tag{Group: 0x0028, Element: 0x0101}
	tagHighBit                   = tag.Tag{Group: 0x0028, Element: 0x0102}
	tagPixelRepresentation       = tag.Tag{Group: 0x0028, Element: 0x0103}
	tagLossyImageCompression     = tag.Tag{Group: 0x0028, Element: 0x2110}
	tagPixelMeasuresSequence     = tag.Tag{Group: 0x0028, Element: 0x9110}

	tagSegmentationType              = tag.Tag{Group: 0x0062, Element: 0x0001}
	tagSegmentSequence               = tag.Tag{Group: 0x0062, Element: 0x0002}
	tagSegmentNumber                 = tag.Tag{Group: 0x0062, Element: 0x0004}
	tagSegmentLabel                  = tag.Tag{Group: 0x0062, Element: 0x0005}
	tagSegmentDescription            = tag.Tag{Group: 0x0062, Element: 0x0006}
	tagSegmentAlgorithmType          = tag.Tag{Group: 0x0062, Element: 0x0008}
	tagSegmentIdentificationSequence = tag.Tag{Group: 0x0062, Element: 0x000A}
	tagReferencedSegmentNumber       = tag.Tag{Group: 0x0062, Element: 0x000B}
	tagRecommendedDisplayCIELab      = tag.Tag{Group: 0x0062, Element: 0x000D}
	tagMaximumFractionalValue        = tag.Tag{Group: 0x0062, Element: 0x000E}

	tagContentLabel = tag.Tag{Group: 0x0070, Element: 0x0080}

	tagSharedFunctionalGroupsSequence   = tag.Tag{Group: 0x5200, Element: 0x9229}
	tagPerFrameFunctionalGroupsSequence = tag.Tag{Group: 0x5200, Element: 0x9230}

	tagPixelData = tag.Tag{Group: 0x7FE0, Element: 0x0010}
)
