/*
	Package seg provides the types, constants, and functions shared by every package of
	the DICOM Segmentation codec: the SEG dataset model, source image metadata, labelmaps,
	the error taxonomy, logging, and binary serialization.  It has no dependencies on other
	packages within this module so that the codec stages (orientation, packing, source
	mapping, overlap, assembly, building) can all be expressed in terms of these types.
*/
package seg
